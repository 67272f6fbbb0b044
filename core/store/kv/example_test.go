package kv

import (
	"fmt"
	"os"
	"path/filepath"
)

func ExampleBucket_Scan() {
	dir, err := os.MkdirTemp(os.TempDir(), "example")
	if err != nil {
		panic("failed to create folder: " + err.Error())
	}

	defer os.RemoveAll(dir)

	db, err := New(filepath.Join(dir, "ledger.db"))
	if err != nil {
		panic("failed to open db: " + err.Error())
	}

	defer db.Close()

	nonces := map[string][]byte{
		"nonce:carol": {2},
		"nonce:alice": {7},
		"rent:alice":  {100},
		"nonce:bob":   {0},
	}

	err = db.Update(func(tx WritableTx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("ledger"))
		if err != nil {
			return err
		}

		for key, value := range nonces {
			err = bucket.Set([]byte(key), value)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		panic("database write failed: " + err.Error())
	}

	err = db.View(func(tx ReadableTx) error {
		bucket := tx.GetBucket([]byte("ledger"))
		if bucket == nil {
			return nil
		}

		return bucket.Scan([]byte("nonce:"), func(key, value []byte) error {
			fmt.Println(string(key), value[0])
			return nil
		})
	})
	if err != nil {
		panic("database read failed: " + err.Error())
	}

	// Output: nonce:alice 7
	// nonce:bob 0
	// nonce:carol 2
}
