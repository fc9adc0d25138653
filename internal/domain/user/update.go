package user

// UpdateParams carries only the fields present in an update payload.
// Nil means "leave untouched". The handler sets Role only for admin
// callers; the repo applies whatever is non-nil.
type UpdateParams struct {
	Name   *string
	Email  *string
	Age    *int
	CityID *string
	Role   *string
}

func (p UpdateParams) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Age == nil && p.CityID == nil && p.Role == nil
}
