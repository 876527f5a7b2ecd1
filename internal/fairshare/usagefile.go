package fairshare

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const usageMagic uint32 = 0x46535531 // "FSU1"

// UsageNameMax bounds an entity name's length in a version-2 usage file
// (spec §6: "version 2 uses the full entity length (<= USAGE_NAME_MAX)").
const UsageNameMax = 128

// UsageRecord is one persisted (name, usage) pair.
type UsageRecord struct {
	Name  string
	Usage float64
}

// WriteUsageFile persists the fair-share usage file in version-2 format:
// magic, version, last-decay-time, then one record per leaf (spec §6).
func WriteUsageFile(w io.Writer, lastDecay time.Time, records []UsageRecord) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, usageMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(2)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint64(lastDecay.Unix())); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(records))); err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Name) > UsageNameMax {
			return fmt.Errorf("fairshare: entity name %q exceeds USAGE_NAME_MAX", r.Name)
		}
		if err := binary.Write(bw, binary.BigEndian, uint32(len(r.Name))); err != nil {
			return err
		}
		if _, err := bw.WriteString(r.Name); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, r.Usage); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadUsageFile reads either version-1 (fixed 8-character names, no
// decay-time header) or version-2 usage files, dispatching on the version
// field (spec §6).
func ReadUsageFile(r io.Reader) (lastDecay time.Time, records []UsageRecord, err error) {
	br := bufio.NewReader(r)
	var magic, version uint32
	if err = binary.Read(br, binary.BigEndian, &magic); err != nil {
		return
	}
	if magic != usageMagic {
		err = fmt.Errorf("fairshare: bad usage file magic %x", magic)
		return
	}
	if err = binary.Read(br, binary.BigEndian, &version); err != nil {
		return
	}
	switch version {
	case 1:
		return readUsageV1(br)
	case 2:
		return readUsageV2(br)
	default:
		err = fmt.Errorf("fairshare: unsupported usage file version %d", version)
		return
	}
}

func readUsageV1(br *bufio.Reader) (time.Time, []UsageRecord, error) {
	var count uint32
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return time.Time{}, nil, err
	}
	records := make([]UsageRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		nameBuf := make([]byte, 8)
		if _, err := io.ReadFull(br, nameBuf); err != nil {
			return time.Time{}, nil, err
		}
		var usage float64
		if err := binary.Read(br, binary.BigEndian, &usage); err != nil {
			return time.Time{}, nil, err
		}
		records = append(records, UsageRecord{Name: trimNulls(nameBuf), Usage: usage})
	}
	return time.Time{}, records, nil
}

func readUsageV2(br *bufio.Reader) (time.Time, []UsageRecord, error) {
	var decayUnix uint64
	if err := binary.Read(br, binary.BigEndian, &decayUnix); err != nil {
		return time.Time{}, nil, err
	}
	var count uint32
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return time.Time{}, nil, err
	}
	records := make([]UsageRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint32
		if err := binary.Read(br, binary.BigEndian, &nameLen); err != nil {
			return time.Time{}, nil, err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(br, nameBuf); err != nil {
			return time.Time{}, nil, err
		}
		var usage float64
		if err := binary.Read(br, binary.BigEndian, &usage); err != nil {
			return time.Time{}, nil, err
		}
		records = append(records, UsageRecord{Name: string(nameBuf), Usage: usage})
	}
	return time.Unix(int64(decayUnix), 0), records, nil
}

func trimNulls(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
