package upload

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange は変換対象のページ範囲です（1始まり）。End が 0 の場合は最終ページまで。
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r PageRange) String() string {
	switch {
	case r.End == 0:
		return fmt.Sprintf("%d-", r.Start)
	case r.Start == r.End:
		return strconv.Itoa(r.Start)
	default:
		return fmt.Sprintf("%d-%d", r.Start, r.End)
	}
}

// ParsePageRanges は "1-3,5,8-" 形式のページ指定を解析します。
// 文書のページ数は投入時点では分からないため、上限の検証は変換時に行います。
func ParsePageRanges(expr string) ([]PageRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	segments := strings.Split(expr, ",")
	ranges := make([]PageRange, 0, len(segments))
	lastEnd := 0

	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, invalid("The page selection contains an empty range.")
		}

		pr, err := parseSingleRange(seg)
		if err != nil {
			return nil, err
		}
		if pr.Start <= lastEnd {
			return nil, invalid("Page ranges must be in ascending order without overlaps.")
		}
		if pr.End == 0 && i != len(segments)-1 {
			return nil, invalid("An open-ended range must be the last range.")
		}
		lastEnd = pr.End
		ranges = append(ranges, pr)
	}

	return ranges, nil
}

// FormatPageRanges は正規化したページ指定を返します。
func FormatPageRanges(ranges []PageRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

func parseSingleRange(seg string) (PageRange, error) {
	if strings.Contains(seg, "-") {
		parts := strings.SplitN(seg, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return PageRange{}, invalid("The start of a page range must be an integer.")
		}
		end := 0
		if strings.TrimSpace(parts[1]) != "" {
			end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return PageRange{}, invalid("The end of a page range must be an integer.")
			}
			if end < start {
				return PageRange{}, invalid("The end of a page range must not precede its start.")
			}
		}
		if start < 1 {
			return PageRange{}, invalid("Page numbers start at 1.")
		}
		return PageRange{Start: start, End: end}, nil
	}

	page, err := strconv.Atoi(seg)
	if err != nil {
		return PageRange{}, invalid("Page numbers must be integers.")
	}
	if page < 1 {
		return PageRange{}, invalid("Page numbers start at 1.")
	}
	return PageRange{Start: page, End: page}, nil
}
