package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"bizscout/config"
	"bizscout/models"
)

// SupabaseStore talks to the listings table through PostgREST.
type SupabaseStore struct {
	url        string
	serviceKey string
	table      string
	client     *http.Client
}

func NewSupabaseStore(cfg *config.SupabaseConfig, client *http.Client) *SupabaseStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	table := cfg.Table
	if table == "" {
		table = "business_listings"
	}
	return &SupabaseStore{
		url:        cfg.URL,
		serviceKey: cfg.ServiceKey,
		table:      table,
		client:     client,
	}
}

func (s *SupabaseStore) Close() error {
	return nil
}

func (s *SupabaseStore) endpoint(q url.Values) string {
	u := s.url + "/rest/v1/" + s.table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *SupabaseStore) do(ctx context.Context, method, target string, body any, prefer string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func (s *SupabaseStore) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	_, err := s.do(ctx, http.MethodGet, s.endpoint(q), nil, "")
	return wrap("ping", err)
}

func (s *SupabaseStore) FindByIdentity(ctx context.Context, key models.IdentityKey) (*models.StoredListing, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("original_url", "eq."+key.URL)
	if key.Name != "" {
		q.Set("name", "eq."+key.Name)
	}
	q.Set("order", "created_at.asc")
	q.Set("limit", "1")

	data, err := s.do(ctx, http.MethodGet, s.endpoint(q), nil, "")
	if err != nil {
		return nil, wrap("find", err)
	}

	var rows []models.StoredListing
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, wrap("find", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SupabaseStore) Insert(ctx context.Context, l *models.NormalizedListing) (string, error) {
	ts := now()
	row := models.StoredListing{
		ID:                uuid.NewString(),
		NormalizedListing: *l,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	row.Highlights = nonNil(l.Highlights)

	if _, err := s.do(ctx, http.MethodPost, s.endpoint(nil), row, "return=minimal"); err != nil {
		return "", wrap("insert", err)
	}
	return row.ID, nil
}

func (s *SupabaseStore) Update(ctx context.Context, id string, patch models.ListingPatch) error {
	body := map[string]any{}
	cols, vals := patchColumns(patch)
	for i, c := range cols {
		body[c] = vals[i]
	}
	if len(patch.Highlights) > 0 {
		body["highlights"] = patch.Highlights
	}
	body["updated_at"] = now()

	q := url.Values{}
	q.Set("id", "eq."+id)
	data, err := s.do(ctx, http.MethodPatch, s.endpoint(q), body, "return=representation")
	if err != nil {
		return wrap("update", err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return wrap("update", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) ListIncomplete(ctx context.Context, limit int) ([]models.StoredListing, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("or", "(asking_price.eq.0,annual_revenue.eq.0,description.eq.)")
	q.Set("order", "updated_at.asc")
	q.Set("limit", fmt.Sprint(limit))

	data, err := s.do(ctx, http.MethodGet, s.endpoint(q), nil, "")
	if err != nil {
		return nil, wrap("list incomplete", err)
	}

	var rows []models.StoredListing
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, wrap("list incomplete", err)
	}
	return rows, nil
}
