package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type throttleStateRecord struct {
	bun.BaseModel `bun:"table:attest_throttle_state,alias:ats"`

	ID           string    `bun:"id,pk"`
	ProviderID   string    `bun:"provider_id,notnull"`
	AppID        string    `bun:"app_id,notnull"`
	BackoffCount int       `bun:"backoff_count,notnull"`
	AllowAfter   time.Time `bun:"allow_after,notnull"`
	HTTPStatus   int       `bun:"http_status"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
