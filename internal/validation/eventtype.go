// Package validation concentra las reglas de formato de los identificadores
// que viajan en requests.
package validation

import "regexp"

// Reglas para event_type:
// - Minúsculas.
// - Empieza y termina con [a-z0-9].
// - En el medio admite [a-z0-9:_.-].
// - Largo 1..64.
//
// Válidos: motion, person_detected, audio:glass_break, cam-1.zone2
// Inválidos: ;hack, MAYUS, "con espacio", :lead, trail:, "" y 65+ chars.
var eventTypeRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidEventType dice si el nombre cumple el patrón permitido.
func ValidEventType(name string) bool {
	return eventTypeRe.MatchString(name)
}
