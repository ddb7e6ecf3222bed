// Package persist stores the session token and a snapshot of the client-side
// state (active knowledge base, status caches, delete registry) in a local
// sqlite database, so a restart resumes where the picker left off. Snapshots
// older than the freshness ceiling are discarded on load.
package persist

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kbpicker/internal/model"
	"kbpicker/internal/store"
)

type SessionToken struct {
	ID        uint   `gorm:"primaryKey"`
	Value     string `gorm:"size:8192"`
	CreatedAt time.Time
}

type KBRecord struct {
	ID        uint `gorm:"primaryKey"`
	KBID      string
	Name      string
	KBCreated time.Time
	SavedAt   time.Time
}

type StatusRecord struct {
	ID         uint   `gorm:"primaryKey"`
	KBID       string `gorm:"index"`
	FolderPath string
	ResourceID string
	Status     string
}

type RegistryRecord struct {
	ID           uint   `gorm:"primaryKey"`
	ResourceID   string `gorm:"uniqueIndex"`
	ResourceName string
	KBID         string
	MarkedAt     time.Time
}

// Store wraps the sqlite database.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// Open opens (creating if needed) the database at path and migrates the
// schema. ttl is the snapshot freshness ceiling.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SessionToken{}, &KBRecord{}, &StatusRecord{}, &RegistryRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db, ttl: ttl}, nil
}

// SaveToken persists the session token, replacing any previous one.
func (s *Store) SaveToken(token string) error {
	if err := s.db.Where("1 = 1").Delete(&SessionToken{}).Error; err != nil {
		return err
	}
	return s.db.Create(&SessionToken{Value: token}).Error
}

// LoadToken returns the persisted session token, or "" when there is none.
func (s *Store) LoadToken() (string, error) {
	var t SessionToken
	err := s.db.Order("created_at desc").First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return t.Value, nil
}

// ClearToken drops the persisted session.
func (s *Store) ClearToken() error {
	return s.db.Where("1 = 1").Delete(&SessionToken{}).Error
}

// Save replaces the persisted snapshot with the given state.
func (s *Store) Save(kb model.KnowledgeBase, statuses []store.StatusEntry, registry []store.RegistryEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&KBRecord{}, &StatusRecord{}, &RegistryRecord{}} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}

		rec := KBRecord{KBID: kb.ID, Name: kb.Name, KBCreated: kb.CreatedAt, SavedAt: time.Now()}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, e := range statuses {
			row := StatusRecord{KBID: e.KBID, FolderPath: e.FolderPath, ResourceID: e.ResourceID, Status: string(e.Status)}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, e := range registry {
			row := RegistryRecord{ResourceID: e.ResourceID, ResourceName: e.ResourceName, KBID: e.KBID, MarkedAt: e.MarkedAt}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot is the loaded form of a persisted snapshot.
type Snapshot struct {
	KB       model.KnowledgeBase
	Statuses []store.StatusEntry
	Registry []store.RegistryEntry
}

// Load returns the persisted snapshot, or nil when there is none or it is
// older than the freshness ceiling (in which case it is also deleted).
func (s *Store) Load() (*Snapshot, error) {
	var rec KBRecord
	err := s.db.Order("saved_at desc").First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Since(rec.SavedAt) > s.ttl {
		return nil, s.Clear()
	}

	var statusRows []StatusRecord
	if err := s.db.Find(&statusRows).Error; err != nil {
		return nil, err
	}
	var registryRows []RegistryRecord
	if err := s.db.Find(&registryRows).Error; err != nil {
		return nil, err
	}

	snap := &Snapshot{
		KB: model.KnowledgeBase{ID: rec.KBID, Name: rec.Name, CreatedAt: rec.KBCreated},
	}
	for _, r := range statusRows {
		snap.Statuses = append(snap.Statuses, store.StatusEntry{
			KBID:       r.KBID,
			FolderPath: r.FolderPath,
			ResourceID: r.ResourceID,
			Status:     model.IndexStatus(r.Status),
		})
	}
	for _, r := range registryRows {
		snap.Registry = append(snap.Registry, store.RegistryEntry{
			ResourceID:   r.ResourceID,
			ResourceName: r.ResourceName,
			KBID:         r.KBID,
			MarkedAt:     r.MarkedAt,
		})
	}
	return snap, nil
}

// Clear drops the persisted snapshot (but not the session token).
func (s *Store) Clear() error {
	for _, m := range []any{&KBRecord{}, &StatusRecord{}, &RegistryRecord{}} {
		if err := s.db.Where("1 = 1").Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}
