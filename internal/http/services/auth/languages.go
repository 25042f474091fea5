package auth

import "strings"

// matchLanguage selecciona el idioma de interfaz para una cuenta nueva: el
// primer idioma preferido presente en la lista soportada. Sin match, el
// primer idioma soportado (determinista, sin heurísticas).
func matchLanguage(prefs, supported []string) string {
	if len(supported) == 0 {
		return "en-US"
	}
	for _, p := range prefs {
		for _, s := range supported {
			if equalLang(p, s) {
				return s
			}
		}
	}
	return supported[0]
}

// equalLang compara tags de idioma: match exacto case-insensitive, o el
// prefijo primario ("fr" matchea "fr-FR").
func equalLang(pref, supported string) bool {
	pref = strings.ToLower(strings.TrimSpace(pref))
	sup := strings.ToLower(supported)
	if pref == "" {
		return false
	}
	if pref == sup {
		return true
	}
	if base, _, ok := strings.Cut(sup, "-"); ok && pref == base {
		return true
	}
	return false
}
