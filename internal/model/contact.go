package model

// Contact is a recipient record. CustomFields carries list-specific
// attributes used for template personalization.
type Contact struct {
	ID           int               `db:"id" json:"id"`
	Email        string            `db:"email" json:"email"`
	FirstName    string            `db:"first_name" json:"first_name"`
	LastName     string            `db:"last_name" json:"last_name"`
	CustomFields map[string]string `db:"custom_fields" json:"custom_fields,omitempty"`
}

// Fields flattens the contact into template values. Identity fields win
// over custom fields of the same name.
func (c *Contact) Fields() map[string]string {
	out := make(map[string]string, len(c.CustomFields)+4)
	for k, v := range c.CustomFields {
		out[k] = v
	}
	out["email"] = c.Email
	out["first_name"] = c.FirstName
	out["last_name"] = c.LastName
	if c.FirstName != "" || c.LastName != "" {
		name := c.FirstName
		if name != "" && c.LastName != "" {
			name += " "
		}
		out["name"] = name + c.LastName
	}
	return out
}
