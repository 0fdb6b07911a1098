package handlers

import "strings"

// Claims que leen y escriben los handlers built-in.
const (
	ClaimSubject        = "sub"
	ClaimUsername       = "username"
	ClaimAuthorities    = "authorities"
	ClaimAdditionalInfo = "additional_info"
)

// ClaimsAuthorizer lee username de "sub" (o "username"), authorities de
// "authorities" (lista o string separado por espacios) y additional_info.
type ClaimsAuthorizer struct{}

func (ClaimsAuthorizer) ExtractUsername(claims map[string]any) (string, bool) {
	for _, k := range []string{ClaimSubject, ClaimUsername} {
		if s, ok := claims[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func (ClaimsAuthorizer) ExtractAuthorities(claims map[string]any) []string {
	switch v := claims[ClaimAuthorities].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(v)
	}
	return nil
}

func (ClaimsAuthorizer) ExtractAdditional(claims map[string]any) map[string]any {
	m, ok := claims[ClaimAdditionalInfo].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
