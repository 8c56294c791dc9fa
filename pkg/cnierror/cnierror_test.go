package cnierror

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestErrorString(t *testing.T) {
	e := New("0.3.1", CodeIO, "read failed", "disk full")
	if e.Error() != "read failed: disk full" {
		t.Fatalf("Error() = %q", e.Error())
	}
	e2 := New("0.3.1", CodeIO, "read failed", "")
	if e2.Error() != "read failed" {
		t.Fatalf("Error() with no details = %q", e2.Error())
	}
}

func TestCoercePassesThroughExistingError(t *testing.T) {
	original := New("0.3.1", CodeNetwork, "bad subnet", "")
	coerced := Coerce("0.3.1", original)
	if coerced != original {
		t.Fatalf("Coerce should return the same *Error instance unchanged")
	}
}

func TestCoerceWrapsPlainError(t *testing.T) {
	coerced := Coerce("0.3.1", errors.New("boom"))
	if coerced.Code != CodeInternal {
		t.Fatalf("Coerce(plain error).Code = %d, want %d", coerced.Code, CodeInternal)
	}
	if coerced.Details != "boom" {
		t.Fatalf("Coerce(plain error).Details = %q, want boom", coerced.Details)
	}
}

func TestCoerceNil(t *testing.T) {
	if Coerce("0.3.1", nil) != nil {
		t.Fatalf("Coerce(nil) should return nil")
	}
}

func TestNotSupported(t *testing.T) {
	e := NotSupported("0.3.1", "CHECK")
	if e.Code != CodeNotSupported {
		t.Fatalf("NotSupported().Code = %d, want %d", e.Code, CodeNotSupported)
	}
	if e.Details != "CHECK" {
		t.Fatalf("NotSupported().Details = %q, want CHECK", e.Details)
	}
}

func TestWriteToEncodesJSON(t *testing.T) {
	e := New("0.3.1", CodeDecode, "bad config", "unexpected token")
	var buf bytes.Buffer
	if err := e.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	var decoded Error
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode written JSON: %v", err)
	}
	if decoded != *e {
		t.Fatalf("round-tripped error = %+v, want %+v", decoded, *e)
	}
}
