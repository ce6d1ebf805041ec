package rapor

import "github.com/jward/rapor/internal/store"

// Public type aliases for the internal store records returned by the Engine.

type Store = store.Store
type School = store.School
type Student = store.Student
type Grade = store.Grade
type Photo = store.Photo
