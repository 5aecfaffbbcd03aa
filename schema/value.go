package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueString renders an extracted value for comparison and pattern
// learning. JSON decoding yields float64 for numbers; integral values are
// rendered without a decimal part.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
