package mpesa

// Flatten lifts a Daraja STK envelope
//
//	{"Body":{"stkCallback":{"CheckoutRequestID":..., "ResultCode":0, "CallbackMetadata":{"Item":[{"Name":..,"Value":..}]}}}}
//
// into a flat key space. Keys already present at the top level win. Payloads without an envelope
// are returned as a shallow copy.
func Flatten(payload map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(payload))

	if stk := stkCallback(payload); stk != nil {
		for k, v := range stk {
			if k == "CallbackMetadata" {
				continue
			}
			flat[k] = v
		}
		if meta, ok := stk["CallbackMetadata"].(map[string]interface{}); ok {
			items, _ := meta["Item"].([]interface{})
			for _, raw := range items {
				item, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				name, ok := item["Name"].(string)
				if !ok || name == "" {
					continue
				}
				if v, ok := item["Value"]; ok {
					flat[name] = v
				}
			}
		}
	}

	for k, v := range payload {
		if k == "Body" {
			if _, isEnvelope := v.(map[string]interface{}); isEnvelope {
				continue
			}
		}
		flat[k] = v
	}
	return flat
}

func stkCallback(payload map[string]interface{}) map[string]interface{} {
	body, ok := payload["Body"].(map[string]interface{})
	if !ok {
		return nil
	}
	stk, ok := body["stkCallback"].(map[string]interface{})
	if !ok {
		return nil
	}
	return stk
}
