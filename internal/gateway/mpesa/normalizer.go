package mpesa

import (
	"fmt"
	"strings"
	"time"

	"github.com/ttacon/libphonenumber"

	"github.com/frahmantamala/pos-payments/internal/gateway"
)

var (
	orderRefFields = []field{
		{key: "orderId", extract: asString},
		{key: "orderIds", extract: firstElement},
		{key: "reference", extract: asString},
		{key: "accountReference", extract: asString},
		{key: "AccountReference", extract: asString},
	}

	txnRefFields = keys(asString,
		"transactionId",
		"checkoutRequestId", "CheckoutRequestID",
		"mpesaReceiptNumber", "MpesaReceiptNumber",
	)

	merchantRequestFields = keys(asString, "merchantRequestId", "MerchantRequestID")
	checkoutRequestFields = keys(asString, "checkoutRequestId", "CheckoutRequestID")
	receiptFields         = keys(asString, "mpesaReceiptNumber", "MpesaReceiptNumber")
	phoneFields           = keys(asString, "phoneNumber", "PhoneNumber", "phone", "MSISDN")
	accountRefFields      = keys(asString, "accountReference", "AccountReference")
	descriptionFields     = keys(asString, "transactionDesc", "TransactionDesc", "description")
	resultDescFields      = keys(asString, "resultDesc", "ResultDesc")
	currencyFields        = keys(asString, "currency", "Currency")
	customerNameFields    = keys(asString, "customerName", "CustomerName")
	amountKeys            = []string{"amount", "Amount"}
)

type Normalizer struct {
	phoneRegion string
	now         func() time.Time
}

func NewNormalizer(phoneRegion string) *Normalizer {
	if phoneRegion == "" {
		phoneRegion = DefaultPhoneRegion
	}
	return &Normalizer{
		phoneRegion: strings.ToUpper(phoneRegion),
		now:         time.Now,
	}
}

// Normalize is a pure function of the payload apart from the synthesized transaction reference.
func (n *Normalizer) Normalize(payload map[string]interface{}) (*gateway.Callback, error) {
	flat := Flatten(payload)

	orderRef := firstMatch(flat, orderRefFields)
	if orderRef == "" {
		return nil, gateway.ErrUnresolvableCallback
	}

	txnRef := firstMatch(flat, txnRefFields)
	if txnRef == "" {
		txnRef = fmt.Sprintf("%s-%d", Name, n.now().UnixNano())
	}

	cb := &gateway.Callback{
		Gateway:           Name,
		OrderRef:          orderRef,
		TxnRef:            txnRef,
		CheckoutRequestID: firstMatch(flat, checkoutRequestFields),
		MerchantRequestID: firstMatch(flat, merchantRequestFields),
		ReceiptNumber:     firstMatch(flat, receiptFields),
		Currency:          strings.ToUpper(firstMatch(flat, currencyFields)),
		Phone:             n.normalizePhone(firstMatch(flat, phoneFields)),
		CustomerName:      firstMatch(flat, customerNameFields),
		AccountReference:  firstMatch(flat, accountRefFields),
		Description:       firstMatch(flat, descriptionFields),
		ResultDesc:        firstMatch(flat, resultDescFields),
		Raw:               flat,
	}

	for _, k := range amountKeys {
		if v, ok := flat[k]; ok {
			if amount, ok := asDecimal(v); ok {
				cb.Amount = &amount
				break
			}
		}
	}

	return cb, nil
}

// normalizePhone formats the number as E.164, keeping the input when it cannot be parsed.
func (n *Normalizer) normalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, n.phoneRegion)
	if err != nil {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
