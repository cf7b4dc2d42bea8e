package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
)

// checkSnippet rejects code shapes that can take down the host process
// even with a recover in place: goroutines run outside it, and unbounded
// recursion ends in a fatal stack overflow. Channels are rejected because a
// blocked operation outlives the deadline.
//
// The snippet must declare calculateInsurance and no other function. With
// function literals also rejected, a self-call is the only way to recurse.
func checkSnippet(code string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", "package snippet\n"+code, parser.SkipObjectResolution)
	if err != nil {
		return &ExecutionFailedError{Message: err.Error()}
	}

	found := false
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		if fn.Recv != nil || fn.Name.Name != FunctionName {
			return rejected(fset, fn.Pos(), fmt.Sprintf("only %s may be declared, found %s", FunctionName, fn.Name.Name))
		}
		if found {
			return rejected(fset, fn.Pos(), FunctionName+" is declared twice")
		}
		found = true
	}
	if !found {
		return &ExecutionFailedError{Message: FunctionName + " is not declared"}
	}

	var reason string
	var at token.Pos
	ast.Inspect(file, func(n ast.Node) bool {
		if reason != "" {
			return false
		}
		switch x := n.(type) {
		case *ast.GoStmt:
			reason, at = "go statements are not allowed", x.Pos()
		case *ast.FuncLit:
			reason, at = "function literals are not allowed", x.Pos()
		case *ast.ChanType, *ast.SendStmt, *ast.SelectStmt:
			reason, at = "channels are not allowed", x.Pos()
		case *ast.UnaryExpr:
			if x.Op == token.ARROW {
				reason, at = "channels are not allowed", x.Pos()
			}
		case *ast.CallExpr:
			if id, ok := ast.Unparen(x.Fun).(*ast.Ident); ok && id.Name == FunctionName {
				reason, at = FunctionName+" may not call itself", x.Pos()
			}
		}
		return reason == ""
	})
	if reason != "" {
		return rejected(fset, at, reason)
	}
	return nil
}

func rejected(fset *token.FileSet, pos token.Pos, reason string) error {
	p := fset.Position(pos)
	// line 1 is the synthetic package clause
	return &ExecutionFailedError{Message: fmt.Sprintf("line %d: %s", p.Line-1, reason)}
}
