// Package translit converts between Cyrillic and Latin script. It only produces extra search
// variants; canonical project names are never rewritten.
package translit

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var toLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya",
}

// cyrillicUnits is ordered longest first; ToCyrillic takes the first unit that matches.
var cyrillicUnits = []struct {
	latin string
	cyr   string
}{
	{"shch", "щ"},
	{"kh", "х"}, {"ts", "ц"}, {"ch", "ч"}, {"sh", "ш"},
	{"yo", "ё"}, {"zh", "ж"}, {"yu", "ю"}, {"ya", "я"},
	{"a", "а"}, {"b", "б"}, {"c", "к"}, {"d", "д"}, {"e", "е"}, {"f", "ф"}, {"g", "г"},
	{"h", "х"}, {"i", "и"}, {"j", "й"}, {"k", "к"}, {"l", "л"}, {"m", "м"}, {"n", "н"},
	{"o", "о"}, {"p", "п"}, {"q", "к"}, {"r", "р"}, {"s", "с"}, {"t", "т"}, {"u", "у"},
	{"v", "в"}, {"w", "в"}, {"x", "кс"}, {"y", "й"}, {"z", "з"},
}

// ToLatin transliterates Cyrillic letters to Latin. Other runes pass through unchanged.
func ToLatin(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		lower := unicode.ToLower(r)
		lat, ok := toLatin[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if lower != r {
			lat = capitalize(lat)
		}
		b.WriteString(lat)
	}
	return b.String()
}

// ToCyrillic transliterates Latin letters to Cyrillic, matching multi-letter units such as
// "shch" and "kh" before single letters. Other runes pass through unchanged.
func ToCyrillic(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r >= utf8.RuneSelf || !unicode.IsLetter(r) {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		matched := false
		for _, u := range cyrillicUnits {
			if hasPrefixFold(s[i:], u.latin) {
				cyr := u.cyr
				if unicode.IsUpper(r) {
					cyr = capitalize(cyr)
				}
				b.WriteString(cyr)
				i += len(u.latin)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteRune(r)
			i += size
		}
	}
	return b.String()
}

// Variants returns s followed by its Latin and Cyrillic transliterations, without duplicates.
func Variants(s string) []string {
	out := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, v := range []string{s, ToLatin(s), ToCyrillic(s)} {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
