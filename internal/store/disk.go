package store

import (
	"time"

	"github.com/dgraph-io/badger"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Badger keeps transferred files in a badger key-value store, one CBOR encoded record per file.
type Badger struct {
	db *badger.DB
}

type fileRecord struct {
	Content  []byte `cbor:"1,keyasint"`
	Modified int64  `cbor:"2,keyasint"` // unix seconds
}

var filePrefix = []byte("file/")

func fileKey(name string) []byte {
	k := make([]byte, 0, len(filePrefix)+len(name))
	k = append(k, filePrefix...)
	return append(k, name...)
}

func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions
	opts.Dir, opts.ValueDir = dir, dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger file store")
	}

	return &Badger{db: db}, nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}

// WriteFile replaces the record for name.
func (s *Badger) WriteFile(name string, content []byte) error {
	if err := CheckName(name); err != nil {
		return err
	}

	v, err := cbor.Marshal(fileRecord{Content: content, Modified: time.Now().Unix()})
	if err != nil {
		return errors.Wrap(err, "encode file record")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(name), v)
	})
	return errors.Wrapf(err, "store %s", name)
}

func (s *Badger) ReadFile(name string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}

	var rec fileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.Wrap(ErrNotFound, name)
			}
			return err
		}

		val, err := item.Value()
		if err != nil {
			return err
		}
		return cbor.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	return rec.Content, nil
}

// Names lists all stored file names.
func (s *Badger) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(filePrefix); it.ValidForPrefix(filePrefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(filePrefix):]))
		}
		return nil
	})
	return names, err
}
