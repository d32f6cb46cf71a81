package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the container format version written in the header.
const Version = 1

type Header struct {
	Version      int    `json:"version"`
	WorldID      string `json:"world_id"`
	LightVersion int    `json:"light_version"`
	Tick         uint64 `json:"tick"`
	Chunks       int    `json:"chunks"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64  `json:"seed"`
	MinSection    int    `json:"min_section"`
	MaxSection    int    `json:"max_section"`
	BoundaryR     int    `json:"boundary_r"`
	PaletteDigest string `json:"palette_digest"`

	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	CX       int         `json:"cx"`
	CZ       int         `json:"cz"`
	Sections []SectionV1 `json:"sections"`
	// Light is nil for chunks saved before they were lit.
	Light *LightV1 `json:"light,omitempty"`
}

// SectionV1 holds one non-empty block section as RLE palette ids.
type SectionV1 struct {
	Y      int    `json:"y"`
	Blocks string `json:"blocks"`
}

type LightV1 struct {
	Version int              `json:"version"`
	Block   []SectionLightV1 `json:"block,omitempty"`
	Sky     []SectionLightV1 `json:"sky,omitempty"`
}

// SectionLightV1 is one nibble store: its state and, for initialized
// stores, the RLE text of its payload.
type SectionLightV1 struct {
	Y     int    `json:"y"`
	State uint8  `json:"state"`
	Data  string `json:"data,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	snap.Header.Version = Version
	snap.Header.Chunks = len(snap.Chunks)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
