package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
)

type integrationRow struct {
	ID            string         `db:"id"`
	OwnerID       string         `db:"owner_id"`
	Type          string         `db:"type"`
	Name          string         `db:"name"`
	Config        []byte         `db:"config"`
	CredentialRef string         `db:"credential_ref"`
	Tags          pq.StringArray `db:"tags"`
	Active        bool           `db:"active"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r integrationRow) toDomain() integration.Integration {
	var config map[string]string
	_ = json.Unmarshal(r.Config, &config)
	return integration.Integration{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Type:          integration.Type(r.Type),
		Name:          r.Name,
		Config:        config,
		CredentialRef: r.CredentialRef,
		Tags:          r.Tags,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (s *Store) CreateIntegration(ctx context.Context, in integration.Integration) (integration.Integration, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	config, err := json.Marshal(in.Config)
	if err != nil {
		return integration.Integration{}, mapError("create integration", "integration", in.Name, err)
	}

	now := time.Now().UTC()
	in.CreatedAt = now
	in.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO integrations (id, owner_id, type, name, config, credential_ref, tags, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		in.ID, in.OwnerID, string(in.Type), in.Name, config, in.CredentialRef, pq.Array(in.Tags), in.Active, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return integration.Integration{}, mapError("create integration", "integration", in.Name, err)
	}
	return in, nil
}

func (s *Store) UpdateIntegration(ctx context.Context, in integration.Integration) (integration.Integration, error) {
	config, err := json.Marshal(in.Config)
	if err != nil {
		return integration.Integration{}, mapError("update integration", "integration", in.ID, err)
	}
	in.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE integrations
		SET name = $2, config = $3, credential_ref = $4, tags = $5, active = $6, updated_at = $7
		WHERE id = $1`,
		in.ID, in.Name, config, in.CredentialRef, pq.Array(in.Tags), in.Active, in.UpdatedAt)
	if err != nil {
		return integration.Integration{}, mapError("update integration", "integration", in.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return integration.Integration{}, mapError("update integration", "integration", in.ID, errNoRows)
	}
	return s.GetIntegration(ctx, in.ID)
}

func (s *Store) GetIntegration(ctx context.Context, id string) (integration.Integration, error) {
	var row integrationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM integrations WHERE id = $1`, id)
	if err != nil {
		return integration.Integration{}, mapError("get integration", "integration", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListIntegrations(ctx context.Context, ownerID string) ([]integration.Integration, error) {
	var rows []integrationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM integrations
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list integrations", "integration", "", err)
	}
	out := make([]integration.Integration, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteIntegration(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return mapError("delete integration", "integration", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError("delete integration", "integration", id, errNoRows)
	}
	return nil
}
