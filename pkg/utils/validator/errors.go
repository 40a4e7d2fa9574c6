package validator

import "strings"

// FieldError 单个字段的校验错误。
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors 校验错误集合。
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ""
	}
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

// Count returns the number of field errors.
func (e *ValidationErrors) Count() int {
	if e == nil {
		return 0
	}
	return len(e.Errors)
}

// First returns the first field error or nil.
func (e *ValidationErrors) First() *FieldError {
	if e.Count() == 0 {
		return nil
	}
	return &e.Errors[0]
}

// Messages returns all translated messages in order.
func (e *ValidationErrors) Messages() []string {
	if e == nil {
		return nil
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return msgs
}

// ToMap returns field -> first message.
func (e *ValidationErrors) ToMap() map[string]string {
	m := make(map[string]string)
	if e == nil {
		return m
	}
	for _, fe := range e.Errors {
		if _, ok := m[fe.Field]; !ok {
			m[fe.Field] = fe.Message
		}
	}
	return m
}
