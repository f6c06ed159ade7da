package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"QuorumGate/internal/storage"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

// entry holds one ledger record.
type entry struct {
	key   []byte
	value []byte
}

// Create exports the full ledger as a zstd-compressed snapshot.
//
// Uncompressed layout:
//
//	[4B version][4B count] then per record [4B keyLen][key][4B valLen][val]
//	followed by a 32-byte blake3 checksum over everything before it.
//
// Records are sorted by key so equal ledgers produce identical snapshots.
func Create(db *storage.Storage) ([]byte, error) {
	entries, err := collect(db)
	if err != nil {
		return nil, fmt.Errorf("collect records:\n%w", err)
	}

	sortEntries(entries)

	var buf bytes.Buffer
	var scratch [8]byte

	binary.BigEndian.PutUint32(scratch[:4], snapshotVersion)
	buf.Write(scratch[:4])

	binary.BigEndian.PutUint32(scratch[:4], uint32(len(entries)))
	buf.Write(scratch[:4])

	for _, e := range entries {
		binary.BigEndian.PutUint32(scratch[:4], uint32(len(e.key)))
		buf.Write(scratch[:4])
		buf.Write(e.key)

		binary.BigEndian.PutUint32(scratch[:4], uint32(len(e.value)))
		buf.Write(scratch[:4])
		buf.Write(e.value)
	}

	checksum := blake3.Sum256(buf.Bytes())
	buf.Write(checksum[:])

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// Apply decompresses a snapshot, verifies its checksum, and writes every
// record into db in one batch. Existing records with the same keys are
// overwritten; others are left alone.
func Apply(db *storage.Storage, compressed []byte) (int, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return 0, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return 0, fmt.Errorf("decompress:\n%w", err)
	}

	entries, err := parse(data)
	if err != nil {
		return 0, err
	}

	pairs := make([]storage.KeyValue, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KeyValue{Key: e.key, Value: e.value}
	}

	if err := db.SetBatch(pairs); err != nil {
		return 0, fmt.Errorf("write records:\n%w", err)
	}

	return len(entries), nil
}

// collect reads every record in the ledger.
func collect(db *storage.Storage) ([]entry, error) {
	var entries []entry

	err := db.Iterate(func(key, value []byte) error {
		keyCopy := make([]byte, len(key))
		copy(keyCopy, key)

		valueCopy := make([]byte, len(value))
		copy(valueCopy, value)

		entries = append(entries, entry{key: keyCopy, value: valueCopy})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// parse validates a decompressed snapshot and returns its records.
func parse(data []byte) ([]entry, error) {
	if len(data) < 8+32 {
		return nil, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}

	body := data[:len(data)-32]
	stored := data[len(data)-32:]

	computed := blake3.Sum256(body)
	if !bytes.Equal(computed[:], stored) {
		return nil, fmt.Errorf("checksum mismatch")
	}

	version := binary.BigEndian.Uint32(body[:4])
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	count := binary.BigEndian.Uint32(body[4:8])
	rest := body[8:]

	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, remaining, err := readChunk(rest)
		if err != nil {
			return nil, fmt.Errorf("record %d key:\n%w", i, err)
		}

		value, remaining, err := readChunk(remaining)
		if err != nil {
			return nil, fmt.Errorf("record %d value:\n%w", i, err)
		}

		entries = append(entries, entry{key: key, value: value})
		rest = remaining
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after records", len(rest))
	}

	return entries, nil
}

// readChunk reads one length-prefixed chunk.
func readChunk(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}

	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]

	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("truncated chunk: want %d bytes, have %d", n, len(data))
	}

	return data[:n], data[n:], nil
}

// sortEntries orders records by key for deterministic output.
func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
}
