// Package record recovers product records from unknown-shape payloads.
//
// The site publishes no schema, so the package works in two decoupled
// stages: a depth-bounded walker that discovers candidate arrays of
// records inside an arbitrary JSON tree, and a field extractor that
// resolves id/name/price/link from each record through prioritized
// candidate-key cascades.
package record

import "github.com/tidwall/gjson"

// Arrays discovers every array-of-object in a JSON payload: the root
// itself, any top-level value, or any value one level of nesting down.
// Deeper structures are deliberately ignored; in practice listing
// endpoints do not bury their record arrays further than that.
func Arrays(body []byte) []gjson.Result {
	root := gjson.ParseBytes(body)
	var found []gjson.Result

	if isRecordArray(root) {
		found = append(found, root)
	}
	if root.IsObject() {
		root.ForEach(func(_, v gjson.Result) bool {
			if isRecordArray(v) {
				found = append(found, v)
				return true
			}
			if v.IsObject() {
				v.ForEach(func(_, vv gjson.Result) bool {
					if isRecordArray(vv) {
						found = append(found, vv)
					}
					return true
				})
			}
			return true
		})
	}
	return found
}

// isRecordArray reports whether v is a non-empty array whose first
// element is an object.
func isRecordArray(v gjson.Result) bool {
	if !v.IsArray() {
		return false
	}
	arr := v.Array()
	return len(arr) > 0 && arr[0].IsObject()
}
