package common

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"path/filepath"

	"github.com/go-faster/errors"
)

// TableID identifies one heap file. It is derived from the file's absolute
// path so that reopening the same file yields the same id.
type TableID uint64

type PageID uint64

const (
	SerializedPageAddressSize = 16
	SerializedRecordIDSize    = SerializedPageAddressSize + 2
)

// TableIDForPath hashes the cleaned absolute form of path.
func TableIDForPath(path string) (TableID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, errors.Wrapf(err, "resolve absolute path of %q", path)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(filepath.Clean(abs)))

	return TableID(h.Sum64()), nil
}

// PageAddress is the (table, page number) key of a page.
type PageAddress struct {
	TableID TableID
	PageID  PageID
}

func (p PageAddress) String() string {
	return fmt.Sprintf("(table=%d, page=%d)", p.TableID, p.PageID)
}

func (p PageAddress) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, p.TableID)
	_ = binary.Write(buf, binary.BigEndian, p.PageID)

	return buf.Bytes(), nil
}

func (p *PageAddress) UnmarshalBinary(data []byte) error {
	rd := bytes.NewReader(data)
	if err := binary.Read(rd, binary.BigEndian, &p.TableID); err != nil {
		return err
	}

	return binary.Read(rd, binary.BigEndian, &p.PageID)
}

// RecordID locates a stored tuple: its page and slot index.
type RecordID struct {
	TableID TableID
	PageID  PageID
	SlotNum uint16
}

func NewRecordID(addr PageAddress, slot uint16) RecordID {
	return RecordID{
		TableID: addr.TableID,
		PageID:  addr.PageID,
		SlotNum: slot,
	}
}

func (r RecordID) PageAddress() PageAddress {
	return PageAddress{
		TableID: r.TableID,
		PageID:  r.PageID,
	}
}

func (r RecordID) String() string {
	return fmt.Sprintf("(table=%d, page=%d, slot=%d)", r.TableID, r.PageID, r.SlotNum)
}

func (r RecordID) MarshalBinary() ([]byte, error) {
	addr, _ := r.PageAddress().MarshalBinary()

	buf := bytes.NewBuffer(addr)
	_ = binary.Write(buf, binary.BigEndian, r.SlotNum)

	return buf.Bytes(), nil
}

func (r *RecordID) UnmarshalBinary(data []byte) error {
	var addr PageAddress
	if err := addr.UnmarshalBinary(data); err != nil {
		return err
	}
	if len(data) < SerializedRecordIDSize {
		return errors.Errorf("record id needs %d bytes, got %d", SerializedRecordIDSize, len(data))
	}

	r.TableID = addr.TableID
	r.PageID = addr.PageID
	r.SlotNum = binary.BigEndian.Uint16(data[SerializedPageAddressSize:])

	return nil
}

// AccessMode is the access a caller requests on a page. The buffer pool hands
// it to its lock manager.
type AccessMode uint8

const (
	AccessShared AccessMode = iota
	AccessExclusive
)

func (m AccessMode) String() string {
	switch m {
	case AccessShared:
		return "shared"
	case AccessExclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(m))
	}
}
