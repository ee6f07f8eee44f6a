package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixell07/codeagent-rag/internal/apperr"
)

// APIClient is a registered service caller: a flat identity, not scoped
// to any organization, user, or repository. Adapted from the teacher's
// tenant.User — the per-org/per-role fields are dropped since this
// service's authorization boundary is the bearer token alone.
type APIClient struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ClientStore persists API clients in Postgres.
type ClientStore struct {
	db *pgxpool.Pool
}

// NewClientStore builds a ClientStore over an existing pool.
func NewClientStore(db *pgxpool.Pool) *ClientStore {
	return &ClientStore{db: db}
}

// Migrate creates the api_clients table.
func (s *ClientStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS api_clients (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	secret_hash TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return apperr.Store("migrate api_clients", err)
	}
	return nil
}

func (s *ClientStore) create(ctx context.Context, c *APIClient) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_clients (id, name, secret_hash, created_at) VALUES ($1,$2,$3,$4)`,
		c.ID, c.Name, c.SecretHash, c.CreatedAt,
	)
	if err != nil {
		return apperr.Store("create api client", err)
	}
	return nil
}

func (s *ClientStore) findByName(ctx context.Context, name string) (*APIClient, error) {
	c := &APIClient{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, secret_hash, created_at FROM api_clients WHERE name = $1`, name,
	).Scan(&c.ID, &c.Name, &c.SecretHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Store("find api client", err)
	}
	return c, nil
}

// Service registers API clients and exchanges client credentials for
// bearer tokens, replacing the teacher's org/user register-and-login
// flow with a single flat client identity.
type Service struct {
	store *ClientStore
	jwt   *JWTManager
}

// NewService builds an auth Service.
func NewService(store *ClientStore, jwt *JWTManager) *Service {
	return &Service{store: store, jwt: jwt}
}

// RegisterRequest names a new API client and its plaintext secret.
type RegisterRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// TokenRequest exchanges client credentials for a bearer token.
type TokenRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Register creates a new API client, hashing its secret with bcrypt.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*APIClient, error) {
	if req.Name == "" || req.Secret == "" {
		return nil, apperr.Validation("name and secret are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Provider("hash client secret", err)
	}
	client := &APIClient{ID: uuid.NewString(), Name: req.Name, SecretHash: string(hash), CreatedAt: time.Now()}
	if err := s.store.create(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Token verifies client credentials and issues a signed bearer token.
func (s *Service) Token(ctx context.Context, req TokenRequest) (string, error) {
	client, err := s.store.findByName(ctx, req.Name)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", apperr.Validation("invalid client credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(req.Secret)); err != nil {
		return "", apperr.Validation("invalid client credentials")
	}
	token, err := s.jwt.Generate(client.ID)
	if err != nil {
		return "", apperr.Provider("generate token", err)
	}
	return token, nil
}
