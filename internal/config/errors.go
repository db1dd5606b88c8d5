package config

import "fmt"

type FileInvalidError struct {
	Path string
	Err  error
}

func (e *FileInvalidError) Error() string {
	return fmt.Sprintf("Configuration file %s is invalid: %s", e.Path, e.Err)
}

func (e *FileInvalidError) Unwrap() error {
	return e.Err
}

type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("Configuration file not found: %s", e.Path)
}

type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Key, e.Reason)
}
