// Package qdrant implements vectorstore.Storage on a Qdrant collection
// reached over gRPC.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

const textKey = "text"

// Storage keeps records as points with numeric ids equal to their
// insertion rank. The collection uses cosine distance and is created on
// first use.
type Storage struct {
	client     *qdrant.Client
	collection string

	mu        sync.Mutex
	next      int
	loaded    bool
	dimension int
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection is required", domain.ErrConfiguration)
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Storage{client: client, collection: cfg.Collection}, nil
}

// Exists reports whether the collection is present on the server. An
// unreachable server is an error.
func (s *Storage) Exists(ctx context.Context) (bool, error) {
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("qdrant collection exists: %w", err)
	}
	return ok, nil
}

// EnsureCollection creates the collection with the given vector size when
// it does not exist yet.
func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure(ctx, dimension)
}

func (s *Storage) ensure(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.ErrInvalidEmbedding
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(dimension),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Add(ctx context.Context, vector []float32, content string, meta domain.Metadata) (int, error) {
	if err := vectorstore.Validate(vector); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		if err := s.ensure(ctx, len(vector)); err != nil {
			return 0, err
		}
	}
	if len(vector) != s.dimension {
		return 0, domain.DimensionError(s.dimension, len(vector))
	}
	if !s.loaded {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.collection,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return 0, fmt.Errorf("qdrant count: %w", err)
		}
		s.next = int(n)
		s.loaded = true
	}

	id := s.next
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(id)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: toPayload(content, meta),
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant upsert: %w", err)
	}
	s.next++
	return id, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK < 0 {
		return nil, domain.ErrInvalidTopK
	}
	if err := vectorstore.Validate(vector); err != nil {
		return nil, err
	}
	if topK == 0 {
		return []domain.SearchResult{}, nil
	}
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(resp))
	for _, p := range resp {
		id := int(p.GetId().GetNum())
		content, meta := fromPayload(p.GetPayload())
		results = append(results, domain.SearchResult{
			ID:    id,
			Score: float64(p.GetScore()),
			Record: domain.Record{
				ID:       id,
				Content:  content,
				Metadata: meta,
			},
		})
	}
	sortResults(results)
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(n), nil
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	s.mu.Lock()
	s.next, s.loaded, s.dimension = 0, false, 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

// sortResults restores the id tie-break that the server does not guarantee.
func sortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func toPayload(content string, meta domain.Metadata) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(meta)+1)
	for k, v := range meta {
		payload[k] = toValue(v)
	}
	payload[textKey] = qdrant.NewValueString(content)
	return payload
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return qdrant.NewValueString(val)
	case bool:
		return qdrant.NewValueBool(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case float64:
		return qdrant.NewValueDouble(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return qdrant.NewValueInt(i)
		}
		if f, err := val.Float64(); err == nil {
			return qdrant.NewValueDouble(f)
		}
		return qdrant.NewValueString(val.String())
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = qdrant.NewValueString(s)
		}
		return qdrant.NewValueList(&qdrant.ListValue{Values: values})
	case []any:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			values[i] = toValue(item)
		}
		return qdrant.NewValueList(&qdrant.ListValue{Values: values})
	case map[string]any:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = toValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	default:
		data, _ := json.Marshal(v)
		return qdrant.NewValueString(string(data))
	}
}

func fromPayload(payload map[string]*qdrant.Value) (string, domain.Metadata) {
	meta := make(domain.Metadata, len(payload))
	var content string
	for k, v := range payload {
		if k == textKey {
			content = v.GetStringValue()
			continue
		}
		meta[k] = fromValue(v)
	}
	return content, meta
}

func fromValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		out := make([]any, len(val.ListValue.GetValues()))
		for i, lv := range val.ListValue.GetValues() {
			out[i] = fromValue(lv)
		}
		return out
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(val.StructValue.GetFields()))
		for k, nv := range val.StructValue.GetFields() {
			out[k] = fromValue(nv)
		}
		return out
	}
	return nil
}

var _ vectorstore.Storage = (*Storage)(nil)
