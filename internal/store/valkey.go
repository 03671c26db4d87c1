package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
	"github.com/vmihailenco/msgpack/v5"
)

// valkeyPrefix namespaces our keys inside a shared Valkey database.
const valkeyPrefix = "feedsync:"

type valkeyRecord struct {
	Value     string `msgpack:"v"`
	UpdatedAt int64  `msgpack:"t"`
}

// ValkeyStore persists entries in a Valkey (Redis-compatible) server, with
// values encoded as msgpack records.
type ValkeyStore struct {
	client valkey.Client
}

// OpenValkey connects to the server at address.
func OpenValkey(address string) (*ValkeyStore, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	return &ValkeyStore{client: client}, nil
}

func valkeyKey(key string) string { return valkeyPrefix + key }

func (v *ValkeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := v.client.B().Get().Key(valkeyKey(key)).Build()
	resp := v.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to execute get command: %w", err)
	}
	raw, err := resp.AsBytes()
	if err != nil {
		return "", false, fmt.Errorf("failed to convert response to bytes: %w", err)
	}
	rec, err := decodeValkeyRecord(raw)
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

func (v *ValkeyStore) Set(ctx context.Context, key, value string) error {
	raw, err := encodeValkeyRecord(valkeyRecord{Value: value, UpdatedAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	cmd := v.client.B().Set().Key(valkeyKey(key)).Value(string(raw)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (v *ValkeyStore) Close() error {
	v.client.Close()
	return nil
}

func encodeValkeyRecord(rec valkeyRecord) ([]byte, error) {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return raw, nil
}

func decodeValkeyRecord(raw []byte) (valkeyRecord, error) {
	var rec valkeyRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return valkeyRecord{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}
