package unitypackage

import (
	"fmt"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"
)

// Field identifies a value stored on a Record.
type Field uint8

const (
	// FieldGUID is the GUID directory name, set alongside FieldPathname.
	FieldGUID Field = iota

	// FieldPathname is the asset's project path (UTF-8 text).
	FieldPathname

	// FieldAsset is the raw asset payload.
	FieldAsset

	// FieldAssetMeta is the sidecar metadata text. It is optional.
	FieldAssetMeta

	numFields
)

// String returns the field's key as used in diagnostics.
func (f Field) String() string {
	switch f {
	case FieldGUID:
		return "guid"
	case FieldPathname:
		return "pathname"
	case FieldAsset:
		return "asset"
	case FieldAssetMeta:
		return "asset_meta"
	default:
		return "unknown"
	}
}

// ParseField maps a field key ("guid", "pathname", "asset", "asset_meta")
// to its Field.
func ParseField(key string) (Field, bool) {
	for f := range numFields {
		if f.String() == key {
			return f, true
		}
	}
	return 0, false
}

// State reports how a field is currently held by a Record.
type State uint8

const (
	// StateAbsent means the field was never set.
	StateAbsent State = iota

	// StateUnextracted means the field refers to archive content that has
	// not been read yet.
	StateUnextracted

	// StateExtracted means the field's bytes are held in memory.
	StateExtracted
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateUnextracted:
		return "unextracted"
	case StateExtracted:
		return "extracted"
	default:
		return "unknown"
	}
}

// Extractor reads member content from an open archive.
type Extractor interface {
	Extract(m Member) ([]byte, error)
}

// value holds one field. It moves from StateUnextracted to StateExtracted
// at most once.
type value struct {
	state  State
	member Member
	data   []byte
}

// Record is one importable asset of a package, keyed by GUID.
//
// Fields start as references into the archive and are read on first
// access; later reads return the cached bytes. A Record is not safe for
// concurrent use.
type Record struct {
	guid   string
	src    Extractor
	fields [numFields]value
}

func newRecord(guid string, src Extractor) *Record {
	return &Record{guid: guid, src: src}
}

// set stores an unextracted reference to m for field f.
func (r *Record) set(f Field, m Member) error {
	if f >= numFields {
		return fmt.Errorf("unitypackage: unknown field %d", f)
	}
	if r.fields[f].state != StateAbsent {
		return fmt.Errorf("%w: %s %s", ErrDuplicateField, r.guid, f)
	}
	r.fields[f] = value{state: StateUnextracted, member: m}
	return nil
}

// setText stores an already extracted text value for field f.
func (r *Record) setText(f Field, s string) error {
	if f >= numFields {
		return fmt.Errorf("unitypackage: unknown field %d", f)
	}
	if r.fields[f].state != StateAbsent {
		return fmt.Errorf("%w: %s %s", ErrDuplicateField, r.guid, f)
	}
	r.fields[f] = value{state: StateExtracted, data: []byte(s)}
	return nil
}

// GUID returns the record's GUID.
func (r *Record) GUID() string {
	return r.guid
}

// State returns the current state of field f.
func (r *Record) State(f Field) State {
	if f >= numFields {
		return StateAbsent
	}
	return r.fields[f].state
}

// Has reports whether every one of fields is set.
func (r *Record) Has(fields ...Field) bool {
	for _, f := range fields {
		if r.State(f) == StateAbsent {
			return false
		}
	}
	return true
}

// Size returns the byte length of field f without extracting it.
// ok is false when the field is not set.
func (r *Record) Size(f Field) (size int64, ok bool) {
	switch r.State(f) {
	case StateUnextracted:
		return r.fields[f].member.Size, true
	case StateExtracted:
		return int64(len(r.fields[f].data)), true
	default:
		return 0, false
	}
}

// Value returns the bytes of field f, reading them from the archive on
// first access.
//
// The returned slice is shared with the Record and must be treated as
// immutable. Reading a field that was never set fails with ErrKeyNotSet.
func (r *Record) Value(f Field) ([]byte, error) {
	switch r.State(f) {
	case StateExtracted:
		return r.fields[f].data, nil
	case StateUnextracted:
		v := &r.fields[f]
		data, err := r.src.Extract(v.member)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.guid, f, err)
		}
		v.data = data
		v.state = StateExtracted
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s %s", ErrKeyNotSet, r.guid, f)
	}
}

// Text returns field f decoded as UTF-8. Invalid UTF-8 fails with ErrDecode.
func (r *Record) Text(f Field) (string, error) {
	data, err := r.Value(f)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s %s", ErrDecode, r.guid, f)
	}
	return string(data), nil
}

// Pathname returns the asset's path inside the authoring project.
func (r *Record) Pathname() (string, error) {
	return r.Text(FieldPathname)
}

// Asset returns the raw asset payload.
func (r *Record) Asset() ([]byte, error) {
	return r.Value(FieldAsset)
}

// AssetMeta returns the sidecar metadata text. Records without a sidecar
// fail with ErrKeyNotSet.
func (r *Record) AssetMeta() (string, error) {
	return r.Text(FieldAssetMeta)
}

// Basename returns the final element of the pathname.
func (r *Record) Basename() (string, error) {
	p, err := r.Pathname()
	if err != nil {
		return "", err
	}
	return baseName(p), nil
}

// Dirname returns the directory part of the pathname, or "" for a bare name.
func (r *Record) Dirname() (string, error) {
	p, err := r.Pathname()
	if err != nil {
		return "", err
	}
	return dirName(p), nil
}

// Extension returns the pathname's extension including the dot, such as
// ".png", or "" when there is none.
func (r *Record) Extension() (string, error) {
	p, err := r.Pathname()
	if err != nil {
		return "", err
	}
	return extension(p), nil
}

// Digest returns the sha256 digest of the asset payload.
func (r *Record) Digest() (digest.Digest, error) {
	data, err := r.Asset()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(data), nil
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	return fmt.Sprintf("Record(%s)", r.guid)
}
