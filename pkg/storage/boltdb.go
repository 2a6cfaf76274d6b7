package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/zoe-analytics/zoe/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketUsers      = []byte("users")
	bucketExecutions = []byte("executions")
	bucketServices   = []byte("services")
)

// BoltStore implements Store using BoltDB. BoltDB serializes all writes
// through a single writer transaction, which gives the per-execution
// transition ordering the Store contract requires, and fsyncs on commit,
// which gives durability before visibility.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the state database inside dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "zoe.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketUsers,
			bucketExecutions,
			bucketServices,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func itob(id int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// User operations

func (s *BoltStore) UserNew(name string, role types.UserRole) (int, error) {
	var id int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int(seq)
		user := &types.User{
			ID:        id,
			Name:      name,
			Role:      role,
			CreatedAt: time.Now(),
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
	return id, err
}

func (s *BoltStore) UserGet(id int) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) UserGetByName(name string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if user.Name == name {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Execution operations

func (s *BoltStore) ExecutionNew(name string, userID int, description *types.AppSpec) (int, error) {
	var id int
	err := s.db.Update(func(tx *bolt.Tx) error {
		execs := tx.Bucket(bucketExecutions)
		seq, err := execs.NextSequence()
		if err != nil {
			return err
		}
		id = int(seq)
		exec := &types.Execution{
			ID:          id,
			Name:        name,
			UserID:      userID,
			Description: description,
			Status:      types.ExecutionSubmitted,
			TimeSubmit:  time.Now(),
		}
		data, err := json.Marshal(exec)
		if err != nil {
			return err
		}
		if err := execs.Put(itob(id), data); err != nil {
			return err
		}

		// One service row per declared service, in declaration order
		services := tx.Bucket(bucketServices)
		for _, spec := range description.Services {
			seq, err := services.NextSequence()
			if err != nil {
				return err
			}
			svc := &types.Service{
				ID:            int(seq),
				ExecutionID:   id,
				UserID:        userID,
				Name:          spec.Name,
				Description:   spec,
				Status:        types.ServiceInactive,
				ClusterStatus: types.ClusterStatusUndefined,
			}
			data, err := json.Marshal(svc)
			if err != nil {
				return err
			}
			if err := services.Put(itob(svc.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func (s *BoltStore) ExecutionGet(id int) (*types.Execution, error) {
	var exec types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketExecutions).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &exec); err != nil {
			return err
		}
		return attachServices(tx, &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (s *BoltStore) ExecutionList(filters Filters) ([]*types.Execution, error) {
	var execs []*types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketExecutions).ForEach(func(k, v []byte) error {
			var exec types.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return err
			}
			if matchExecution(&exec, filters) {
				execs = append(execs, &exec)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range execs {
			if err := attachServices(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	return execs, err
}

func (s *BoltStore) ExecutionDelete(id int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		execs := tx.Bucket(bucketExecutions)
		data := execs.Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		var exec types.Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			return err
		}
		if exec.IsActive() {
			return ErrExecutionActive
		}
		// Service rows go away together with their execution
		services := tx.Bucket(bucketServices)
		c := services.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var svc types.Service
			if err := json.Unmarshal(v, &svc); err != nil {
				return err
			}
			if svc.ExecutionID == id {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return execs.Delete(itob(id))
	})
}

// Execution transitions

func (s *BoltStore) SetScheduled(id int) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.Status = types.ExecutionScheduled
	})
}

func (s *BoltStore) SetStarting(id int) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.Status = types.ExecutionStarting
		if e.TimeStart == nil {
			now := time.Now()
			e.TimeStart = &now
		}
	})
}

func (s *BoltStore) SetRunning(id int) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.Status = types.ExecutionRunning
	})
}

func (s *BoltStore) SetCleaningUp(id int) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.Status = types.ExecutionCleaningUp
	})
}

func (s *BoltStore) SetTerminated(id int) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.Status = types.ExecutionTerminated
		now := time.Now()
		e.TimeEnd = &now
	})
}

func (s *BoltStore) SetError(id int, msg string) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.Status = types.ExecutionError
		e.ErrorMessage = msg
		now := time.Now()
		e.TimeEnd = &now
	})
}

func (s *BoltStore) SetErrorMessage(id int, msg string) error {
	return s.updateExecution(id, func(e *types.Execution) {
		e.ErrorMessage = msg
	})
}

func (s *BoltStore) updateExecution(id int, mutate func(*types.Execution)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		data := b.Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		var exec types.Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			return err
		}
		mutate(&exec)
		out, err := json.Marshal(&exec)
		if err != nil {
			return err
		}
		return b.Put(itob(id), out)
	})
}

// Service operations

func (s *BoltStore) ServiceGet(id int) (*types.Service, error) {
	var svc types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketServices).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &svc)
	})
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *BoltStore) ServiceList(filters Filters) ([]*types.Service, error) {
	var services []*types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServices).ForEach(func(k, v []byte) error {
			var svc types.Service
			if err := json.Unmarshal(v, &svc); err != nil {
				return err
			}
			if matchService(&svc, filters) {
				services = append(services, &svc)
			}
			return nil
		})
	})
	return services, err
}

func (s *BoltStore) SetServiceClusterID(id int, clusterID, ipAddress string) error {
	return s.updateService(id, func(svc *types.Service) {
		svc.ClusterID = clusterID
		svc.IPAddress = ipAddress
	})
}

func (s *BoltStore) ClearServiceClusterID(id int) error {
	return s.updateService(id, func(svc *types.Service) {
		svc.ClusterID = ""
		svc.IPAddress = ""
	})
}

func (s *BoltStore) SetServiceStatus(id int, status types.ServiceStatus) error {
	return s.updateService(id, func(svc *types.Service) {
		svc.Status = status
	})
}

func (s *BoltStore) SetServiceClusterStatus(id int, status types.ClusterStatus) error {
	return s.updateService(id, func(svc *types.Service) {
		svc.ClusterStatus = status
	})
}

func (s *BoltStore) updateService(id int, mutate func(*types.Service)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data := b.Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		var svc types.Service
		if err := json.Unmarshal(data, &svc); err != nil {
			return err
		}
		mutate(&svc)
		out, err := json.Marshal(&svc)
		if err != nil {
			return err
		}
		return b.Put(itob(id), out)
	})
}

// Helpers

func attachServices(tx *bolt.Tx, exec *types.Execution) error {
	exec.Services = nil
	return tx.Bucket(bucketServices).ForEach(func(k, v []byte) error {
		var svc types.Service
		if err := json.Unmarshal(v, &svc); err != nil {
			return err
		}
		if svc.ExecutionID == exec.ID {
			exec.Services = append(exec.Services, &svc)
		}
		return nil
	})
}

func matchExecution(e *types.Execution, filters Filters) bool {
	for col, val := range filters {
		switch col {
		case "id":
			if e.ID != val.(int) {
				return false
			}
		case "name":
			if e.Name != val.(string) {
				return false
			}
		case "user_id":
			if e.UserID != val.(int) {
				return false
			}
		case "status":
			if e.Status != val.(types.ExecutionStatus) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchService(svc *types.Service, filters Filters) bool {
	for col, val := range filters {
		switch col {
		case "id":
			if svc.ID != val.(int) {
				return false
			}
		case "name":
			if svc.Name != val.(string) {
				return false
			}
		case "user_id":
			if svc.UserID != val.(int) {
				return false
			}
		case "execution_id":
			if svc.ExecutionID != val.(int) {
				return false
			}
		case "status":
			if svc.Status != val.(types.ServiceStatus) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
