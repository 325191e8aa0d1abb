package mongo

import (
	"time"

	"github.com/xraph/attempts/failed"
)

type failedJobModel struct {
	ID               int64     `bson:"_id"`
	UUID             string    `bson:"uuid"`
	TypeName         string    `bson:"type_name"`
	Connection       string    `bson:"connection"`
	Queue            string    `bson:"queue"`
	Payload          []byte    `bson:"payload"`
	ExceptionSummary string    `bson:"exception_summary"`
	Exception        string    `bson:"exception"`
	Attempts         int       `bson:"attempts"`
	FailedAt         time.Time `bson:"failed_at"`
}

type counterModel struct {
	Key       string    `bson:"_id"`
	Count     int64     `bson:"count"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type sequenceModel struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
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
