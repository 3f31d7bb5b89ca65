package sanitize

import "regexp"

// injectionPatterns is the maintained catalog of instruction-override
// phrases. Matching is case-insensitive and runs on leetspeak-normalized
// text; matches are replaced in place with the filtered marker, never
// dropped together with the surrounding text.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)(\s+\w+)?(\s+and\s+\w+[^.\n]*)?`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|prior)(\s+\w+)?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)(\s+\w+)?`),
	regexp.MustCompile(`(?i)new\s+instructions?:[^\n]*`),
	regexp.MustCompile(`(?i)\bsystem\s*:[^\n]*`),
	regexp.MustCompile(`(?i)\bassistant\s*:[^\n]*`),
	regexp.MustCompile(`(?i)\[INST\]|\[/INST\]`),
	regexp.MustCompile(`(?i)<\|im_start\|>|<\|im_end\|>`),
	regexp.MustCompile(`(?i)###\s*(instruction|system|human|assistant)`),
	regexp.MustCompile(`(?i)you\s+are\s+now(\s+\w+)*`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)[^.\n]*`),
	regexp.MustCompile(`(?i)roleplay\s+as[^.\n]*`),
	regexp.MustCompile(`(?i)act\s+as\s+if[^.\n]*`),
	regexp.MustCompile(`(?i)override\s+(your\s+)?instructions?`),
	regexp.MustCompile(`(?i)bypass\s+(your\s+)?safety`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)\bDAN\s+mode\b`),
	regexp.MustCompile(`(?i)what\s+(is|was|are)\s+your\s+(system\s+)?prompt`),
	regexp.MustCompile(`(?i)(reveal|repeat|share|disclose|output|print|dump|expose)\s+(your|the)\s+(system\s+)?(prompt|instructions?)[^.\n]*`),
	regexp.MustCompile(`(?i)translate\s+the\s+above`),
	regexp.MustCompile(`(?i)output\s+(your|the)\s+initial[^.\n]*`),
	regexp.MustCompile(`(?i)(stop|avoid|cease)\s+following\s+(your|the|current|previous)\s+(instructions?|rules?|polic(y|ies)|safety|guardrails?)`),
	regexp.MustCompile(`(?i)(prioriti[sz]e|follow)\s+(these|new|my)\s+(instructions?|rules?|guidance|directives?)\s+(over|instead\s+of)[^.\n]*`),
	regexp.MustCompile(`(?i)initiali[sz]ed\s+with[^.\n]*`),
	regexp.MustCompile(`(?i)(always|must|regardless)\s+(say|classify|output)[^.\n]*(high|medium|low)\s*(severity)?`),
}

// outputLeakPatterns flag model replies that describe the model's own
// instructions or configuration. Any hit rejects the whole reply.
var outputLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)developer\s+instructions?`),
	regexp.MustCompile(`(?i)my\s+(hidden\s+)?instructions`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)`),
	regexp.MustCompile(`(?i)\{?\s*"role"\s*:\s*"(system|assistant|developer)"`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)operating\s+rules`),
	regexp.MustCompile(`(?i)i\s+was\s+initiali[sz]ed\s+with`),
}

// boundaryEchoPattern recognizes the boundary marker in a model reply even
// after escaping mangled it (collapsed angle runs, padding, case games).
var boundaryEchoPattern = regexp.MustCompile(`(?i)<+\s*PATIENT_INPUT\s*>+`)

// base64Candidate finds runs long enough to hide an encoded override phrase.
var base64Candidate = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)

// leetMap normalizes common character substitutions before pattern
// matching, so "ign0re pr3vious" still hits the catalog. Every mapping is
// single ASCII byte to single ASCII byte, which keeps byte offsets aligned
// between the normalized copy and the original text.
var leetMap = map[byte]byte{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
}

// homoglyphMap folds visually identical Cyrillic and Greek characters onto
// their canonical Latin equivalents before any pattern check.
var homoglyphMap = map[rune]rune{
	// Cyrillic uppercase
	'А': 'A', 'В': 'B', 'С': 'C', 'Е': 'E',
	'Н': 'H', 'К': 'K', 'М': 'M', 'О': 'O',
	'Р': 'P', 'Т': 'T', 'Х': 'X', 'Ѕ': 'S',
	// Cyrillic lowercase
	'а': 'a', 'с': 'c', 'е': 'e', 'о': 'o',
	'р': 'p', 'х': 'x', 'у': 'y', 'ѕ': 's',
	'і': 'i', 'ј': 'j',
	// Greek uppercase
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z',
	'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T',
	'Υ': 'Y', 'Χ': 'X',
	// Greek lowercase
	'ο': 'o',
}

// zeroWidthRunes are stripped outright; they exist only to split tokens
// past the pattern matcher.
var zeroWidthRunes = map[rune]bool{
	'\u200b': true, // zero-width space
	'\u200c': true, // zero-width non-joiner
	'\u200d': true, // zero-width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // byte-order mark
	'\u00ad': true, // soft hyphen
}
