package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// canonicalKey hashes v into a stable cache key: v is marshaled to JSON,
// object keys are sorted recursively via gjson/sjson so two logically equal
// argument sets (differing only in field order) hash identically, then the
// canonical bytes are sha256'd and base64-encoded (spec.md §4.6 "canonical-
// JSON key hashing").
func canonicalKey(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := canonicalize(gjson.ParseBytes(data))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canon))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func canonicalize(r gjson.Result) (string, error) {
	switch {
	case r.IsObject():
		keys := make([]string, 0)
		r.ForEach(func(k, _ gjson.Result) bool {
			keys = append(keys, k.String())
			return true
		})
		sort.Strings(keys)

		out := "{}"
		for _, k := range keys {
			child, err := canonicalize(r.Get(escapeGJSONKey(k)))
			if err != nil {
				return "", err
			}
			var setErr error
			out, setErr = sjson.SetRaw(out, escapeSJSONKey(k), child)
			if setErr != nil {
				return "", setErr
			}
		}
		return out, nil

	case r.IsArray():
		out := "[]"
		i := 0
		var err error
		r.ForEach(func(_, v gjson.Result) bool {
			var child string
			child, err = canonicalize(v)
			if err != nil {
				return false
			}
			out, err = sjson.SetRaw(out, strconv.Itoa(i), child)
			i++
			return err == nil
		})
		if err != nil {
			return "", err
		}
		return out, nil

	default:
		return r.Raw, nil
	}
}

// escapeGJSONKey/escapeSJSONKey escape the path metacharacters both
// libraries treat specially ('.', '*', '?') so a literal key containing one
// is still addressed as a single path segment rather than a nested path.
func escapeGJSONKey(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(k)
}

func escapeSJSONKey(k string) string { return escapeGJSONKey(k) }
