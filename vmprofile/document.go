package vmprofile

// documentBootstrap wires the ergonomic document(path) / document.canonical(path)
// helpers to the Host.v1 namespace that the runtime package installs
// before calling InstallDocumentHelpers. It is plain JS glue, not native
// Go, since all it does is forward arguments.
const documentBootstrap = `
(function() {
  var fn = function(path) { return Host.v1.document.get(path); };
  fn.canonical = function(path) { return Host.v1.document.getCanonical(path); };
  return fn;
})()
`

// InstallDocumentHelpers installs the document global. Host.v1 must
// already be present on the runtime.
func (p *Profile) InstallDocumentHelpers() error {
	v, err := p.rt.RunString(documentBootstrap)
	if err != nil {
		return err
	}
	if err := p.rt.Set("document", v); err != nil {
		return err
	}
	p.FreezeGlobal("document")
	return nil
}
