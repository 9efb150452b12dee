package fieldcrypt

import "encoding/base64"

// EncodedField is the base64 wire and document form of an EncryptedField.
type EncodedField struct {
	IV            string `json:"iv" bson:"iv"`
	EncryptedData string `json:"encryptedData" bson:"encryptedData"`
	AuthTag       string `json:"authTag" bson:"authTag"`
}

// Encode converts the field into its base64 form. An unset field encodes to an unset EncodedField.
func (f EncryptedField) Encode() EncodedField {
	if f.IsZero() {
		return EncodedField{}
	}
	return EncodedField{
		IV:            base64.StdEncoding.EncodeToString(f.Nonce),
		EncryptedData: base64.StdEncoding.EncodeToString(f.Ciphertext),
		AuthTag:       base64.StdEncoding.EncodeToString(f.Tag),
	}
}

// IsZero reports whether no field was stored.
func (e EncodedField) IsZero() bool {
	return e.IV == "" && e.EncryptedData == "" && e.AuthTag == ""
}

// Decode parses the base64 form. Malformed input yields ErrDecryption.
func (e EncodedField) Decode() (EncryptedField, error) {
	nonce, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil || len(nonce) != NonceSize {
		return EncryptedField{}, ErrDecryption
	}
	ciphertext, err := base64.StdEncoding.DecodeString(e.EncryptedData)
	if err != nil {
		return EncryptedField{}, ErrDecryption
	}
	tag, err := base64.StdEncoding.DecodeString(e.AuthTag)
	if err != nil || len(tag) != TagSize {
		return EncryptedField{}, ErrDecryption
	}
	return EncryptedField{Ciphertext: ciphertext, Nonce: nonce, Tag: tag}, nil
}
