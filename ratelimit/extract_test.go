package ratelimit

import "testing"

func TestExtractJSONField_Nested(t *testing.T) {
	data := []byte(`{"user":{"id":"abc123","age":30},"active":true}`)

	v, err := extractBodyField(data, BodyFormatJSON, "user.id")
	if err != nil || v != "abc123" {
		t.Fatalf("expected abc123, got %q err=%v", v, err)
	}

	v, err = extractBodyField(data, BodyFormatJSON, "user.age")
	if err != nil || v != "30" {
		t.Fatalf("expected 30, got %q err=%v", v, err)
	}

	v, err = extractBodyField(data, BodyFormatJSON, "active")
	if err != nil || v != "true" {
		t.Fatalf("expected true, got %q err=%v", v, err)
	}
}

func TestExtractJSONField_MissingPathReturnsEmpty(t *testing.T) {
	data := []byte(`{"user":{"id":"abc"}}`)
	v, err := extractBodyField(data, BodyFormatJSON, "user.email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty string for missing path, got %q", v)
	}
}

func TestExtractJSONField_MalformedJSON(t *testing.T) {
	_, err := extractBodyField([]byte(`{not json`), BodyFormatJSON, "user.id")
	if err != ErrMalformedPayload {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestExtractFormField(t *testing.T) {
	data := []byte("user_id=42&other=x")
	v, err := extractBodyField(data, BodyFormatForm, "user_id")
	if err != nil || v != "42" {
		t.Fatalf("expected 42, got %q err=%v", v, err)
	}

	v, err = extractBodyField(data, BodyFormatForm, "missing")
	if err != nil || v != "" {
		t.Fatalf("expected empty string for missing form field, got %q err=%v", v, err)
	}
}

func TestExtractXMLField(t *testing.T) {
	data := []byte(`<root><user><id>xyz</id></user></root>`)
	v, err := extractBodyField(data, BodyFormatXML, "id")
	if err != nil || v != "xyz" {
		t.Fatalf("expected xyz, got %q err=%v", v, err)
	}
}

func TestExtractXMLField_MalformedXML(t *testing.T) {
	_, err := extractBodyField([]byte(`<root><unterminated>`), BodyFormatXML, "id")
	if err != ErrMalformedPayload {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestExtractMultipartField(t *testing.T) {
	body := "--XYZ\r\nContent-Disposition: form-data; name=\"user_id\"\r\n\r\n99\r\n--XYZ--\r\n"
	v, err := extractMultipartField([]byte(body), "multipart/form-data; boundary=XYZ", "user_id")
	if err != nil || v != "99" {
		t.Fatalf("expected 99, got %q err=%v", v, err)
	}
}
