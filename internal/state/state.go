// Package state implements the memory registry that holds named blobs of
// component state for snapshotting. Components register their state at
// construction; the registry keeps non-owning references only.
package state

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// BlobID identifies one registered blob of component state.
type BlobID uint8

const (
	BlobCPURAM BlobID = iota
	BlobCPURegisters
	BlobPPURegisters
	BlobPPUNametables
	BlobPPUPalette
	BlobPPUOAM
	BlobAPURegisters
	BlobMapperRegisters
	BlobCartridgeSRAM
	BlobCartridgeCHRRAM
)

var blobNames = map[BlobID]string{
	BlobCPURAM:          "cpu.ram",
	BlobCPURegisters:    "cpu.registers",
	BlobPPURegisters:    "ppu.registers",
	BlobPPUNametables:   "ppu.nametables",
	BlobPPUPalette:      "ppu.palette",
	BlobPPUOAM:          "ppu.oam",
	BlobAPURegisters:    "apu.registers",
	BlobMapperRegisters: "mapper.registers",
	BlobCartridgeSRAM:   "cartridge.sram",
	BlobCartridgeCHRRAM: "cartridge.chrram",
}

// String returns the registry name for the blob.
func (id BlobID) String() string {
	if name, ok := blobNames[id]; ok {
		return name
	}
	return fmt.Sprintf("blob(%d)", uint8(id))
}

// blob holds the save/restore hooks one component registered.
type blob struct {
	save    func() []byte
	restore func([]byte) error
}

// Registry enumerates component state for snapshotting. It holds hooks,
// not data: a snapshot taken later observes the component's state at that
// moment.
type Registry struct {
	blobs map[BlobID]blob
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{blobs: make(map[BlobID]blob)}
}

// Register records save/restore hooks under the given identifier.
// Registering the same identifier twice replaces the hooks.
func (r *Registry) Register(id BlobID, save func() []byte, restore func([]byte) error) {
	r.blobs[id] = blob{save: save, restore: restore}
}

// RegisterBytes registers a raw memory blob. Save copies the slice;
// restore copies back in, rejecting a length mismatch.
func (r *Registry) RegisterBytes(id BlobID, data []byte) {
	r.Register(id,
		func() []byte {
			out := make([]byte, len(data))
			copy(out, data)
			return out
		},
		func(in []byte) error {
			if len(in) != len(data) {
				return fmt.Errorf("%s: snapshot length %d, want %d", id, len(in), len(data))
			}
			copy(data, in)
			return nil
		})
}

// Save serialises every registered blob as (id, length, bytes) records in
// ascending identifier order, so two snapshots of identical state are
// byte-identical.
func (r *Registry) Save(w io.Writer) error {
	ids := make([]BlobID, 0, len(r.blobs))
	for id := range r.blobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		data := r.blobs[id].save()
		hdr := [5]byte{byte(id)}
		binary.LittleEndian.PutUint32(hdr[1:], uint32(len(data)))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("saving %s header: %w", id, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("saving %s: %w", id, err)
		}
	}
	return nil
}

// Restore reads (id, length, bytes) records until EOF, handing each payload
// to the registered restore hook of the same identifier. A record for an
// unknown identifier is an error: the stream does not describe this machine.
func (r *Registry) Restore(rd io.Reader) error {
	var hdr [5]byte
	for {
		if _, err := io.ReadFull(rd, hdr[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading snapshot header: %w", err)
		}
		id := BlobID(hdr[0])
		length := binary.LittleEndian.Uint32(hdr[1:])
		b, ok := r.blobs[id]
		if !ok {
			return fmt.Errorf("snapshot contains unknown blob %s", id)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(rd, payload); err != nil {
			return fmt.Errorf("reading %s: %w", id, err)
		}
		if err := b.restore(payload); err != nil {
			return fmt.Errorf("restoring %s: %w", id, err)
		}
	}
}
