package store

import (
	"crypto/sha256"
	"fmt"
)

// ComputeSignatureHash hashes a symbol's semantic identity: name, kind,
// signature, return type, and parameter shapes. Location changes do not
// affect the hash, so moving a symbol within its file never triggers
// dependent re-resolution.
func ComputeSignatureHash(name, kind, signature, returnType string, params []Param) string {
	h := sha256.New()
	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	fmt.Fprintf(h, "signature:%s\n", signature)
	fmt.Fprintf(h, "return:%s\n", returnType)
	for i, p := range params {
		fmt.Fprintf(h, "param:%d:%s:%s\n", i, p.Name, p.TypeExpr)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
