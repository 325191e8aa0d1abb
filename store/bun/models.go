package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/attempts/failed"
)

type migrationModel struct {
	bun.BaseModel `bun:"table:attempts_migrations"`

	Filename  string    `bun:"filename,pk"`
	AppliedAt time.Time `bun:"applied_at,nullzero,notnull,default:current_timestamp"`
}

type failedJobModel struct {
	bun.BaseModel `bun:"table:failed_jobs"`

	ID               int64     `bun:"id,pk,autoincrement"`
	UUID             string    `bun:"uuid,notnull,unique"`
	TypeName         string    `bun:"type_name,notnull"`
	Connection       string    `bun:"connection,notnull"`
	Queue            string    `bun:"queue,notnull"`
	Payload          []byte    `bun:"payload,notnull,type:bytea"`
	ExceptionSummary string    `bun:"exception_summary,notnull"`
	Exception        string    `bun:"exception,notnull"`
	Attempts         int       `bun:"attempts,notnull"`
	FailedAt         time.Time `bun:"failed_at,notnull"`
}

func toFailedModel(r *failed.Record) *failedJobModel {
	return &failedJobModel{
		ID:               r.ID,
		UUID:             r.UUID,
		TypeName:         r.TypeName,
		Connection:       r.Connection,
		Queue:            r.Queue,
		Payload:          r.Payload,
		ExceptionSummary: r.ExceptionSummary,
		Exception:        r.Exception,
		Attempts:         r.Attempts,
		FailedAt:         r.FailedAt.UTC(),
	}
}

func fromFailedModel(m *failedJobModel) *failed.Record {
	return &failed.Record{
		ID:               m.ID,
		UUID:             m.UUID,
		TypeName:         m.TypeName,
		Connection:       m.Connection,
		Queue:            m.Queue,
		Payload:          m.Payload,
		ExceptionSummary: m.ExceptionSummary,
		Exception:        m.Exception,
		Attempts:         m.Attempts,
		FailedAt:         m.FailedAt.UTC(),
	}
}
