package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Schema creates the principals table used by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS principals (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL CHECK (kind IN ('operator', 'subject')),
	name        TEXT NOT NULL DEFAULT '',
	identifiers TEXT[] NOT NULL DEFAULT '{}',
	contacts    TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS principals_identifiers_idx ON principals USING GIN (identifiers);
`

const (
	queryByID = `SELECT id, kind, name, identifiers, contacts FROM principals WHERE id = $1`

	queryByIdentifier = `SELECT id, kind, name, identifiers, contacts FROM principals
WHERE lower(id) = $1 OR $1 = ANY(identifiers) LIMIT 1`

	upsertPrincipal = `INSERT INTO principals (id, kind, name, identifiers, contacts)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name,
identifiers = EXCLUDED.identifiers, contacts = EXCLUDED.contacts`
)

// Postgres reads principals from a principals table. Identifiers are stored
// normalized.
type Postgres struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewPostgres(conn *pgxpool.Pool, ins instrument.Instrumentation) *Postgres {
	return &Postgres{conn: conn, ins: ins}
}

func (s *Postgres) mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrPrincipalNotFound
	}
	return err
}

func (s *Postgres) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("access.outbound.directory").Start(ctx, name)
}

func (s *Postgres) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, entity.ErrPrincipalNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Migrate creates the schema when missing.
func (s *Postgres) Migrate(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Migrate")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, Schema)
	return err
}

func (s *Postgres) Principal(ctx context.Context, id string) (p entity.Principal, err error) {
	ctx, span := s.startSpan(ctx, "Principal")
	defer func() { s.endSpan(span, err) }()

	p, err = scanPrincipal(s.conn.QueryRow(ctx, queryByID, id))
	err = s.mapError(err)
	return p, err
}

func (s *Postgres) Lookup(ctx context.Context, identifier string) (p entity.Principal, err error) {
	ctx, span := s.startSpan(ctx, "Lookup")
	defer func() { s.endSpan(span, err) }()

	p, err = scanPrincipal(s.conn.QueryRow(ctx, queryByIdentifier, entity.NormalizeIdentifier(identifier)))
	err = s.mapError(err)
	return p, err
}

// Upsert writes principals in one transaction, used to seed the table.
func (s *Postgres) Upsert(ctx context.Context, principals []entity.Principal) (err error) {
	ctx, span := s.startSpan(ctx, "Upsert")
	defer func() { s.endSpan(span, err) }()

	batch := &pgx.Batch{}
	for _, p := range principals {
		idents := make([]string, 0, len(p.Identifiers))
		for _, v := range p.Identifiers {
			idents = append(idents, entity.NormalizeIdentifier(v))
		}
		contacts := p.Contacts
		if contacts == nil {
			contacts = []string{}
		}
		batch.Queue(upsertPrincipal, p.ID, p.Kind.String(), p.Name, idents, contacts)
	}

	err = pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return err
}

func scanPrincipal(row pgx.Row) (entity.Principal, error) {
	var (
		p    entity.Principal
		kind string
	)
	if err := row.Scan(&p.ID, &kind, &p.Name, &p.Identifiers, &p.Contacts); err != nil {
		return entity.Principal{}, err
	}
	p.Kind = entity.PrincipalKind(kind)
	return p, nil
}
