package parser

import (
	"strconv"
	"strings"

	"github.com/divingclub/clubattrs/internal/entities"
)

// Format renders conditions in the format Parse reads, one per line.
// Inactive conditions are prefixed with a comment marker.
func Format(conds []*entities.Condition) string {
	var sb strings.Builder

	for _, c := range conds {
		if c == nil {
			continue
		}
		if !c.Active {
			sb.WriteString("// ")
		}
		sb.WriteString(c.String())
		if c.ErrorMessage != nil {
			sb.WriteString(" : ")
			sb.WriteString(strconv.Quote(*c.ErrorMessage))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
