package sqlpool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// Fingerprint is the canonical hash of a ConnectionParameters value and the
// key under which the pool keeps a sub-pool.
type Fingerprint [sha256.Size]byte

// String returns the full hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns an abbreviated hex form for logs and metric labels.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// IsZero reports whether f was never computed.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint decodes the String form.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("invalid fingerprint %q: expected %d bytes, got %d", s, len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

var canonicalJSON = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// Fingerprint computes the pool key for p.
//
// Two parameter sets that only differ in map enumeration order or in the order
// of list-valued options hash to the same value. Dial and the Azure client
// secret never contribute.
func (p ConnectionParameters) Fingerprint() Fingerprint {
	n := p.Normalize()

	doc := map[string]any{
		"host":     n.Host,
		"port":     n.Port,
		"socket":   n.Socket,
		"user":     n.Username,
		"password": n.Password,
		"database": n.Database,
		"charset":  n.Charset,
		"tls": map[string]any{
			"mode":        n.TLS.Mode,
			"ca":          n.TLS.CAFile,
			"cert":        n.TLS.CertFile,
			"key":         n.TLS.KeyFile,
			"server_name": n.TLS.ServerName,
		},
		"options":         canonicalize(n.Options),
		"connect_timeout": n.ConnectTimeout.Nanoseconds(),
		"auth":            int(n.AuthMethod),
		"aws_region":      n.AWSRegion,
		"google_instance": n.GoogleInstance,
		"azure_tenant":    n.AzureTenantID,
		"azure_client":    n.AzureClientID,
	}

	data, err := canonicalJSON.Marshal(doc)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", doc))
	}
	return sha256.Sum256(data)
}

// canonicalize turns v into a tree of sorted slices, struct maps and scalars.
// Functions, channels and other non-data values are dropped.
func canonicalize(v any) any {
	if v == nil {
		return nil
	}
	return canonicalValue(reflect.ValueOf(v))
}

func canonicalValue(rv reflect.Value) any {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case reflect.Map:
		// Entries become [key, value] pairs so keys such as 1 and "1" stay
		// apart and the order never depends on map iteration.
		pairs := make([]any, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, []any{canonicalValue(iter.Key()), canonicalValue(iter.Value())})
		}
		return sortedByEncoding(pairs)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return hex.EncodeToString(rv.Bytes())
		}
		items := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = append(items, canonicalValue(rv.Index(i)))
		}
		return sortedByEncoding(items)
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out[t.Field(i).Name] = canonicalValue(rv.Field(i))
		}
		return out
	default:
		return nil
	}
}

func sortedByEncoding(items []any) []any {
	type keyed struct {
		key  string
		item any
	}
	ks := make([]keyed, len(items))
	for i, item := range items {
		b, err := canonicalJSON.Marshal(item)
		if err != nil {
			b = []byte(fmt.Sprintf("%#v", item))
		}
		ks[i] = keyed{key: string(b), item: item}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })
	out := make([]any, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}
