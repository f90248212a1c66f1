package persistence

import (
	"context"
	"errors"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// instanceKeyPrefix is the canonical prefix for workflow instance records.
const instanceKeyPrefix = "workflow:state:"

// InstanceKey builds the storage key for a workflow instance id.
func InstanceKey(id string) string {
	return instanceKeyPrefix + id
}

// InstanceStore persists workflow instances as one record per instance on
// top of any KVStore.
type InstanceStore struct {
	kv KVStore
}

// NewInstanceStore creates an InstanceStore over the given KVStore.
func NewInstanceStore(kv KVStore) *InstanceStore {
	return &InstanceStore{kv: kv}
}

// Save writes the full instance record.
func (s *InstanceStore) Save(ctx context.Context, inst *api.Instance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, InstanceKey(inst.ID), data)
}

// Get loads an instance by id, or ErrInstanceNotFound.
func (s *InstanceStore) Get(ctx context.Context, id string) (*api.Instance, error) {
	data, err := s.kv.Get(ctx, InstanceKey(id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return DecodeInstance(data)
}

// Delete removes an instance record.
func (s *InstanceStore) Delete(ctx context.Context, id string) error {
	return s.kv.Delete(ctx, InstanceKey(id))
}

// List returns all instances matching the options. It scans the instance
// prefix; the engine's instance counts make a full scan acceptable.
func (s *InstanceStore) List(ctx context.Context, opts api.InstanceListOptions) ([]*api.Instance, error) {
	keys, err := s.kv.Keys(ctx, instanceKeyPrefix)
	if err != nil {
		return nil, err
	}

	var result []*api.Instance
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				// Deleted between Keys and Get.
				continue
			}
			return nil, err
		}
		inst, err := DecodeInstance(data)
		if err != nil {
			return nil, err
		}
		if opts.SubjectID != "" && inst.SubjectID != opts.SubjectID {
			continue
		}
		if opts.Contact != "" && inst.Contact != opts.Contact {
			continue
		}
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		result = append(result, inst)
	}
	return result, nil
}
