package gateway

import (
	"crypto/rsa"

	"github.com/aswathylr-builds/storefront-payments/codec"
)

// ResultCodeOK is the gateway result code for an accepted request.
const ResultCodeOK = 0

// Response is the open-mapping shape every gateway operation returns.
// Asynchronous gateway callbacks deliver the same shape.
type Response struct {
	PayID         string `json:"payId"`
	DTTM          string `json:"dttm,omitempty"`
	ResultCode    int    `json:"resultCode"`
	ResultMessage string `json:"resultMessage"`
	PaymentStatus int    `json:"paymentStatus"`
	MerchantData  string `json:"merchantData,omitempty"`
	Signature     string `json:"signature"`
}

// signableFields returns the response fields in the codec's open-mapping
// form. Optional fields omitted by the gateway are marked absent rather
// than signed as empty strings.
func (r *Response) signableFields() []codec.Field {
	return []codec.Field{
		{Name: "payId", Value: r.PayID},
		{Name: "dttm", Value: optString(r.DTTM)},
		{Name: "resultCode", Value: r.ResultCode},
		{Name: "resultMessage", Value: r.ResultMessage},
		{Name: "paymentStatus", Value: r.PaymentStatus},
		{Name: "merchantData", Value: optString(r.MerchantData)},
	}
}

// SignWith populates the signature field. Used by the gateway side of the
// protocol; in this codebase that is the test double.
func (r *Response) SignWith(key *rsa.PrivateKey) error {
	sig, err := codec.Sign(r.signableFields(), key)
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

// VerifyWith checks the response signature against the gateway's public
// key. A false result means the response content must be discarded.
func (r *Response) VerifyWith(pub *rsa.PublicKey) (bool, error) {
	return codec.Verify(r.signableFields(), r.Signature, pub)
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
