package alert

import "fmt"

const segmentPromptTmpl = `Analyze this video segment carefully.

Video Context:
- This is chunk %d of %d
- Time range: %s to %s
- Duration: %.1f seconds

Task: Determine if this condition occurs in this video segment: %q

Watch the ENTIRE segment carefully from start to end.

IMPORTANT: Respond with valid JSON only:
{
    "detected": true or false,
    "confidence": 0.0 to 1.0,
    "summary": "brief description of what happens in this segment",
    "answer": "detailed explanation - if detected, mention at what point in the segment it occurs"
}

Set "detected" to true ONLY if you clearly see the condition in this segment.`

// segmentPrompt 说明切片位置、时间范围与检测条件，并要求 JSON 回复
func segmentPrompt(s Segment, total int, condition string) string {
	return fmt.Sprintf(segmentPromptTmpl,
		s.Index+1, total,
		FormatClock(s.Start), FormatClock(s.End),
		s.Duration().Seconds(),
		condition,
	)
}
