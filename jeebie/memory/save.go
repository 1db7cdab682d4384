package memory

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
)

// SaveFile is the on-disk persistence format for battery-backed cartridge
// RAM (and, where applicable, MBC3 RTC state).
type SaveFile struct {
	RAM         []byte
	RTC         *RTCSnapshot
	SavedAtUnix int64
}

// ramBackedMBC is implemented by every MBC variant that exposes battery RAM.
type ramBackedMBC interface {
	RAM() []byte
}

// rtcBackedMBC is implemented by MBC3 when the cartridge has an RTC chip.
type rtcBackedMBC interface {
	SnapshotRTC() *RTCSnapshot
}

// SaveToFile persists the cartridge's battery-backed RAM (and RTC state, if
// any) to path using gob encoding. No-op if the loaded cartridge has no
// battery backup.
func (m *MMU) SaveToFile(path string, nowUnix int64) error {
	if !m.cart.HasBattery() {
		return nil
	}
	ramSrc, ok := m.mbc.(ramBackedMBC)
	if !ok {
		return nil
	}

	save := SaveFile{
		RAM:         append([]byte(nil), ramSrc.RAM()...),
		SavedAtUnix: nowUnix,
	}
	if rtcSrc, ok := m.mbc.(rtcBackedMBC); ok {
		save.RTC = rtcSrc.SnapshotRTC()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(save); err != nil {
		return fmt.Errorf("encode save file: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadSaveFile decodes a save file from path without applying it. Returns
// (nil, nil) if path does not exist.
func LoadSaveFile(path string) (*SaveFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read save file: %w", err)
	}

	var save SaveFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&save); err != nil {
		return nil, fmt.Errorf("decode save file: %w", err)
	}
	return &save, nil
}

// ApplyRAM overwrites the cartridge's battery-backed RAM with the given
// bytes, used when restoring from a SaveFile.
func (m *MMU) ApplyRAM(ram []byte) {
	if ramDst, ok := m.mbc.(ramBackedMBC); ok {
		copy(ramDst.RAM(), ram)
	}
}
