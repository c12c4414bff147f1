package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pders01/consult/internal/facet"
)

var (
	favouritesBucket = []byte("favourites")
	presetsBucket    = []byte("presets")
	sessionsBucket   = []byte("sessions")
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidName    = errors.New("preset name must not be empty")
)

type Store struct {
	db *bolt.DB
}

// NewStore opens or creates the database at dbPath. A non-positive
// timeout waits at most one second for the file lock.
func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{favouritesBucket, presetsBucket, sessionsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// scope is the key prefix shared by everything stored for one question.
func scope(consultation, question string) []byte {
	return []byte(consultation + "\x00" + question + "\x00")
}

func itemKey(consultation, question, item string) []byte {
	return append(scope(consultation, question), item...)
}

// ToggleFavourite adds fav when absent and removes it when present. It
// reports whether the response is a favourite afterwards.
func (s *Store) ToggleFavourite(fav *Favourite) (bool, error) {
	key := itemKey(fav.Consultation, fav.Question, fav.ResponseID)
	var added bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(favouritesBucket)
		if b.Get(key) != nil {
			return b.Delete(key)
		}
		if fav.AddedAt.IsZero() {
			fav.AddedAt = time.Now()
		}
		data, err := json.Marshal(fav)
		if err != nil {
			return err
		}
		added = true
		return b.Put(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("toggling favourite: %w", err)
	}
	return added, nil
}

func (s *Store) IsFavourite(consultation, question, responseID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(favouritesBucket).Get(itemKey(consultation, question, responseID)) != nil
		return nil
	})
	return found, err
}

// Favourites lists the favourites of one question, oldest first.
func (s *Store) Favourites(consultation, question string) ([]*Favourite, error) {
	var favs []*Favourite
	err := s.forEachInScope(favouritesBucket, consultation, question, func(v []byte) error {
		var fav Favourite
		if err := json.Unmarshal(v, &fav); err != nil {
			return nil
		}
		favs = append(favs, &fav)
		return nil
	})
	sort.SliceStable(favs, func(i, j int) bool {
		if favs[i].AddedAt.Equal(favs[j].AddedAt) {
			return favs[i].ResponseID < favs[j].ResponseID
		}
		return favs[i].AddedAt.Before(favs[j].AddedAt)
	})
	return favs, err
}

// FavouriteIDs returns the favourite response ids of one question as a set.
func (s *Store) FavouriteIDs(consultation, question string) (map[string]bool, error) {
	favs, err := s.Favourites(consultation, question)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(favs))
	for _, f := range favs {
		ids[f.ResponseID] = true
	}
	return ids, nil
}

// SavePreset stores p, replacing any preset with the same name.
func (s *Store) SavePreset(p *Preset) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrInvalidName
	}
	if p.SavedAt.IsZero() {
		p.SavedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(presetsBucket).Put(itemKey(p.Consultation, p.Question, p.Name), data)
	})
}

func (s *Store) LoadPreset(consultation, question, name string) (*Preset, error) {
	var p Preset
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(presetsBucket).Get(itemKey(consultation, question, strings.TrimSpace(name)))
		if data == nil {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Presets lists the presets of one question sorted by name.
func (s *Store) Presets(consultation, question string) ([]*Preset, error) {
	var presets []*Preset
	err := s.forEachInScope(presetsBucket, consultation, question, func(v []byte) error {
		var p Preset
		if err := json.Unmarshal(v, &p); err != nil {
			return nil
		}
		presets = append(presets, &p)
		return nil
	})
	sort.Slice(presets, func(i, j int) bool {
		return strings.ToLower(presets[i].Name) < strings.ToLower(presets[j].Name)
	})
	return presets, err
}

func (s *Store) DeletePreset(consultation, question, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(presetsBucket)
		key := itemKey(consultation, question, strings.TrimSpace(name))
		if b.Get(key) == nil {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
		}
		return b.Delete(key)
	})
}

// SaveLastFilters remembers the filter state last used for a question.
func (s *Store) SaveLastFilters(consultation, question string, f facet.FilterState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return tx.Bucket(sessionsBucket).Put(scope(consultation, question), data)
	})
}

// LastFilters returns the remembered filter state, if any.
func (s *Store) LastFilters(consultation, question string) (facet.FilterState, bool, error) {
	var f facet.FilterState
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get(scope(consultation, question))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &f)
	})
	return f, found, err
}

func (s *Store) forEachInScope(bucket []byte, consultation, question string, fn func(v []byte) error) error {
	prefix := scope(consultation, question)
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}
