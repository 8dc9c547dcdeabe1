package model

// LanguageRoles maps a language name to the number of film_actor rows
// attached to films in that language.
type LanguageRoles map[string]int64
