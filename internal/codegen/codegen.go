// Package codegen walks the syntax tree and lowers it to a flat,
// label-tagged instruction list plus a global-data vector, per spec
// section 4.3 (original_source/translator.py: compile/compile_str/
// set_varible/t_define).
//
// The generator is pattern-directed on the head of each compound, the
// same dispatch shape as the original; each special form gets its own
// method below. Doc comments are dense on the forms whose stack
// discipline is not obvious from the code and sparse on the rest,
// matching how unevenly the reference compiler itself is commented.
package codegen

import (
	"strconv"

	"github.com/pkg/errors"

	"accvm/internal/isa"
	"accvm/internal/lexer"
	"accvm/internal/linker"
	"accvm/internal/scope"
	"accvm/internal/syntax"
)

var binaryOps = map[string]struct{}{
	"=": {}, "!=": {}, ">=": {}, "+": {}, "-": {}, "*": {}, "/": {}, "%": {},
}

// Compiler holds compile-time state shared across the whole recursive
// walk: the token slice (for diagnostics), the global-data vector, and
// the label counter (spec section 9: "global mutable iterator for
// label generation becomes a counter owned by the code generator").
type Compiler struct {
	tokens  []lexer.Token
	data    scope.GlobalData
	labelN  int
}

// New constructs a Compiler over the token stream the tree was parsed
// from (needed only to render diagnostics).
func New(tokens []lexer.Token) *Compiler {
	return &Compiler{tokens: tokens}
}

func (c *Compiler) nextLabel() string {
	c.labelN++
	return "lable_" + strconv.Itoa(c.labelN)
}

func (c *Compiler) errAt(tokenIdx int, message string) error {
	return syntax.NewDiagnostic(c.tokens, tokenIdx, message)
}

// Compile lowers root to a global-data vector and a linked instruction
// list terminated with HALT — the two-element result spec section 4.3
// says the translator returns.
func (c *Compiler) Compile(root *syntax.Node) ([]int32, []isa.Instruction, error) {
	sc := scope.NewOuter()
	body, err := c.compileNode(root, sc)
	if err != nil {
		return nil, nil, err
	}
	body = append(body, linker.Instr{Op: isa.HALT})
	linked, err := linker.Link(body)
	if err != nil {
		return nil, nil, err
	}
	return c.data.Words(), linked, nil
}

// compileChild compiles a child node: a nested compound recurses
// through compileNode, a leaf goes through compileLeaf (the original's
// compile_str: variable reference, string literal, or number literal).
func (c *Compiler) compileChild(n *syntax.Node, sc scope.Scope) ([]linker.Instr, error) {
	if n.IsCompound() {
		return c.compileNode(n, sc)
	}
	return c.compileLeaf(n, sc)
}

func (c *Compiler) compileLeaf(n *syntax.Node, sc scope.Scope) ([]linker.Instr, error) {
	tok := n.Token
	switch {
	case syntax.IsVariable(tok):
		name := string(tok)
		entry, ok := sc[name]
		if !ok {
			return nil, c.errAt(n.TokenIndex, name+" is undefined")
		}
		if entry.Kind != scope.Variable {
			return nil, c.errAt(n.TokenIndex, name+" isn't variable")
		}
		return []linker.Instr{
			{Op: isa.LD, Operand: isa.OperandDirect(entry.Slot)},
			{Op: isa.PUSH},
		}, nil
	case syntax.IsString(tok):
		base := c.data.AppendString(stripQuotes(string(tok)))
		return []linker.Instr{
			{Op: isa.LD, Operand: isa.OperandDirect(base)},
			{Op: isa.PUSH},
		}, nil
	case syntax.IsNumber(tok):
		return []linker.Instr{
			{Op: isa.LD, Operand: string(tok)},
			{Op: isa.PUSH},
		}, nil
	default:
		return nil, c.errAt(n.TokenIndex, "Unknown token: "+string(tok))
	}
}

func stripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	return s[1 : len(s)-1]
}

// compileNode dispatches a compound form on its head, mirroring the
// original's elif chain.
func (c *Compiler) compileNode(n *syntax.Node, sc scope.Scope) ([]linker.Instr, error) {
	if len(n.Children) == 0 {
		return nil, c.errAt(n.TokenIndex, "Empty parentheses")
	}
	head := n.Children[0]
	if head.IsCompound() || syntax.IsString(head.Token) {
		return c.compileSequence(n.Children, sc)
	}

	headTok := string(head.Token)
	switch {
	case headTok == "setq" || headTok == "defvar" || headTok == "setv":
		return c.compileAssign(n, headTok, sc)
	case headTok == "IN":
		return c.compileIn(n)
	case headTok == "compile-malloc":
		return c.compileMalloc(n)
	case headTok == "getv" || headTok == "OUT":
		return c.compileGetvOrOut(n, headTok, sc)
	case isBinaryOp(headTok):
		return c.compileBinaryOp(n, headTok, sc)
	case headTok == "defun":
		return c.compileDefun(n, sc)
	case headTok == "while" || headTok == "if":
		return c.compileWhileOrIf(n, headTok, sc)
	default:
		return c.compileCall(n, headTok, sc)
	}
}

func isBinaryOp(tok string) bool {
	_, ok := binaryOps[tok]
	return ok
}

// compileSequence treats children as a Lisp-style progn: every child —
// including the first, which is only a "head" by position, not a
// keyword — compiles in order. Every result but the last is discarded
// with POP; the last becomes the sequence's value.
func (c *Compiler) compileSequence(children []*syntax.Node, sc scope.Scope) ([]linker.Instr, error) {
	var out []linker.Instr
	for _, child := range children[:len(children)-1] {
		instrs, err := c.compileChild(child, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
		out = append(out, linker.Instr{Op: isa.POP})
	}
	last := children[len(children)-1]
	instrs, err := c.compileChild(last, sc)
	if err != nil {
		return nil, err
	}
	return append(out, instrs...), nil
}

// compileAssign handles defvar/setq/setv: store the compiled value into
// a variable's global slot, retaining the value on the stack.
func (c *Compiler) compileAssign(n *syntax.Node, kind string, sc scope.Scope) ([]linker.Instr, error) {
	if len(n.Children) != 3 {
		return nil, c.errAt(n.TokenIndex, kind+" expects 2 arguments")
	}
	nameNode := n.Children[1]
	if nameNode.IsCompound() || !syntax.IsVariable(nameNode.Token) {
		return nil, c.errAt(n.TokenIndex, kind+" expects a variable as the first argument")
	}
	name := string(nameNode.Token)
	if kind == "defvar" {
		sc.DefineVariable(&c.data, name)
	}
	entry, ok := sc[name]
	if !ok || entry.Kind != scope.Variable {
		return nil, c.errAt(n.TokenIndex, name+" is not variable")
	}

	valInstrs, err := c.compileChild(n.Children[2], sc)
	if err != nil {
		return nil, err
	}
	out := append([]linker.Instr{}, valInstrs...)
	out = append(out, linker.Instr{Op: isa.LD, Operand: "SP+0"})
	if kind == "setv" {
		out = append(out, linker.Instr{Op: isa.ST, Operand: isa.OperandDirect(entry.Slot)})
	} else {
		out = append(out, linker.Instr{Op: isa.ST, Operand: isa.OperandImmediate(entry.Slot)})
	}
	return out, nil
}

func (c *Compiler) compileIn(n *syntax.Node) ([]linker.Instr, error) {
	if len(n.Children) != 1 {
		return nil, c.errAt(n.TokenIndex, "IN expects 0 arguments")
	}
	return []linker.Instr{{Op: isa.IN}, {Op: isa.PUSH}}, nil
}

func (c *Compiler) compileMalloc(n *syntax.Node) ([]linker.Instr, error) {
	if len(n.Children) != 2 {
		return nil, c.errAt(n.TokenIndex, "compile-malloc expects 1 arguments")
	}
	countNode := n.Children[1]
	if countNode.IsCompound() || !syntax.IsNumber(countNode.Token) {
		return nil, c.errAt(n.TokenIndex, "compile-malloc expects a number as the first argument")
	}
	count, err := strconv.Atoi(string(countNode.Token))
	if err != nil || count <= 0 {
		return nil, c.errAt(n.TokenIndex, "compile-malloc expects a number as the first argument")
	}
	base := c.data.Malloc(count)
	return []linker.Instr{
		{Op: isa.LD, Operand: isa.OperandImmediate(base)},
		{Op: isa.PUSH},
	}, nil
}

func (c *Compiler) compileGetvOrOut(n *syntax.Node, kind string, sc scope.Scope) ([]linker.Instr, error) {
	if len(n.Children) != 2 {
		return nil, c.errAt(n.TokenIndex, kind+" expects 1 argument")
	}
	instrs, err := c.compileChild(n.Children[1], sc)
	if err != nil {
		return nil, err
	}
	out := append([]linker.Instr{}, instrs...)
	if kind == "getv" {
		out = append(out, linker.Instr{Op: isa.LD, Operand: "[SP+0]"})
		out = append(out, linker.Instr{Op: isa.ST, Operand: "SP+0"})
	} else {
		out = append(out, linker.Instr{Op: isa.LD, Operand: "SP+0"})
		out = append(out, linker.Instr{Op: isa.OUT})
	}
	return out, nil
}

var commutativeOp = map[string]isa.Opcode{"+": isa.ADD, "*": isa.MUL}
var leftFirstOp = map[string]isa.Opcode{"-": isa.SUB, "/": isa.DIV, "%": isa.MOD}
var comparisonOp = map[string]isa.Opcode{"=": isa.JE, "!=": isa.JNE, ">=": isa.JGE}

// compileBinaryOp handles "+ - * / % = != >=", each materializing its
// result on top of the two operand slots it consumed (spec section 4.3).
func (c *Compiler) compileBinaryOp(n *syntax.Node, op string, sc scope.Scope) ([]linker.Instr, error) {
	if len(n.Children) != 3 {
		return nil, c.errAt(n.TokenIndex, op+" expects 2 arguments")
	}
	var out []linker.Instr
	for _, arg := range n.Children[1:] {
		instrs, err := c.compileChild(arg, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}

	if opcode, ok := commutativeOp[op]; ok {
		out = append(out,
			linker.Instr{Op: isa.POP},
			linker.Instr{Op: opcode, Operand: "[SP+0]"},
			linker.Instr{Op: isa.ST, Operand: "SP+0"},
		)
		return out, nil
	}
	if opcode, ok := leftFirstOp[op]; ok {
		out = append(out,
			linker.Instr{Op: isa.LD, Operand: "SP+1"},
			linker.Instr{Op: opcode, Operand: "[SP+0]"},
			linker.Instr{Op: isa.ST, Operand: "SP+1"},
			linker.Instr{Op: isa.POP},
		)
		return out, nil
	}
	if jcc, ok := comparisonOp[op]; ok {
		trueLabel := c.nextLabel()
		endLabel := c.nextLabel()
		out = append(out,
			linker.Instr{Op: isa.LD, Operand: "SP+1"},
			linker.Instr{Op: isa.CMP, Operand: "[SP+0]"},
			linker.Instr{Op: jcc, Target: trueLabel},
			linker.Instr{Op: isa.LD, Operand: "0"},
			linker.Instr{Op: isa.JMP, Target: endLabel},
			linker.Instr{Op: isa.LD, Operand: "1", Label: trueLabel},
			linker.Instr{Op: isa.ST, Operand: "SP+1", Label: endLabel},
			linker.Instr{Op: isa.POP},
		)
		return out, nil
	}
	return nil, errors.Errorf("unhandled binary operator %q", op)
}

// compileDefun emits a forward jump around the function body, the
// body itself under a lable_f<token-idx> entry label, and finally
// pushes the constant 1 so defun behaves as an expression (spec
// section 9's retained-verbatim open question).
func (c *Compiler) compileDefun(n *syntax.Node, sc scope.Scope) ([]linker.Instr, error) {
	skipLabel := c.nextLabel()
	out := []linker.Instr{{Op: isa.JMP, Target: skipLabel}}

	if len(n.Children) <= 3 {
		return nil, c.errAt(n.TokenIndex, "defun expects more 3 arguments (name, arguments, ...body)")
	}
	nameNode := n.Children[1]
	if nameNode.IsCompound() || !syntax.IsVariable(nameNode.Token) {
		return nil, c.errAt(n.TokenIndex, "defun expects a name as the first argument")
	}
	argList := n.Children[2]
	if !argList.IsCompound() {
		return nil, c.errAt(n.TokenIndex, "defun expects a arguments as the second argument")
	}
	argNames := make([]string, 0, len(argList.Children))
	for _, a := range argList.Children {
		if a.IsCompound() || !syntax.IsVariable(a.Token) {
			return nil, c.errAt(n.TokenIndex, "defun expects a arguments as the second argument")
		}
		argNames = append(argNames, string(a.Token))
	}
	if len(argNames) == 0 {
		return nil, c.errAt(n.TokenIndex, "Еxpects one or more arguments")
	}

	fscope := sc.ChildForFunction(argNames)
	sc.DefineFunction(string(nameNode.Token), n.TokenIndex, len(argNames))

	entryLabel := "lable_f" + strconv.Itoa(n.TokenIndex)
	out = append(out, linker.Instr{Op: isa.NOP, Label: entryLabel})

	argc := len(argNames)
	for i, name := range argNames {
		fscope.DefineVariable(&c.data, name)
		slot := fscope[name].Slot
		out = append(out,
			linker.Instr{Op: isa.LD, Operand: isa.OperandStackRelative(argc - i)},
			linker.Instr{Op: isa.ST, Operand: isa.OperandImmediate(slot)},
		)
	}

	body := n.Children[3:]
	for _, child := range body[:len(body)-1] {
		instrs, err := c.compileChild(child, fscope)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
		out = append(out, linker.Instr{Op: isa.POP})
	}
	last := body[len(body)-1]
	lastInstrs, err := c.compileChild(last, fscope)
	if err != nil {
		return nil, err
	}
	out = append(out, lastInstrs...)

	out = append(out,
		linker.Instr{Op: isa.POP},
		linker.Instr{Op: isa.ST, Operand: isa.OperandStackRelative(argc)},
		linker.Instr{Op: isa.RET},
		linker.Instr{Op: isa.LD, Operand: "1", Label: skipLabel},
		linker.Instr{Op: isa.PUSH},
	)
	return out, nil
}

// compileWhileOrIf reproduces the original's asymmetric body handling:
// while discards every body statement's value (including the last) so
// repeated iterations never leak stack slots, leaving the falsy loop
// condition as its own expression value on exit; if discards nothing,
// leaving whatever its (single, in practice) body expression produced.
// Both quirks are retained verbatim because the tick/stack-depth
// contracts in spec section 8's golden scenarios depend on them.
func (c *Compiler) compileWhileOrIf(n *syntax.Node, kind string, sc scope.Scope) ([]linker.Instr, error) {
	if len(n.Children) <= 2 {
		return nil, c.errAt(n.TokenIndex, kind+" expects more 2 arguments (condition, ...body)")
	}
	cond := n.Children[1]
	body := n.Children[2:]

	if kind == "while" {
		startLabel := c.nextLabel()
		endLabel := c.nextLabel()
		out := []linker.Instr{{Op: isa.NOP, Label: startLabel}}
		condInstrs, err := c.compileChild(cond, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, condInstrs...)
		out = append(out,
			linker.Instr{Op: isa.LD, Operand: "SP+0"},
			linker.Instr{Op: isa.CMP, Operand: "0"},
			linker.Instr{Op: isa.JE, Target: endLabel},
			linker.Instr{Op: isa.POP},
		)
		for _, child := range body {
			instrs, err := c.compileChild(child, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, instrs...)
			out = append(out, linker.Instr{Op: isa.POP})
		}
		out = append(out,
			linker.Instr{Op: isa.JMP, Target: startLabel},
			linker.Instr{Op: isa.NOP, Label: endLabel},
		)
		return out, nil
	}

	endLabel := c.nextLabel()
	condInstrs, err := c.compileChild(cond, sc)
	if err != nil {
		return nil, err
	}
	out := append([]linker.Instr{}, condInstrs...)
	out = append(out,
		linker.Instr{Op: isa.LD, Operand: "SP+0"},
		linker.Instr{Op: isa.CMP, Operand: "0"},
		linker.Instr{Op: isa.JE, Target: endLabel},
		linker.Instr{Op: isa.POP},
	)
	for _, child := range body {
		instrs, err := c.compileChild(child, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	out = append(out, linker.Instr{Op: isa.NOP, Label: endLabel})
	return out, nil
}

// compileCall handles a function-call form: compile every argument left
// to right, CALL the callee's entry label, then pop argc-1 stack slots
// so exactly one slot — the callee's return value — remains (spec
// section 9's other retained-verbatim open question).
func (c *Compiler) compileCall(n *syntax.Node, name string, sc scope.Scope) ([]linker.Instr, error) {
	entry, ok := sc[name]
	if !ok {
		return nil, c.errAt(n.TokenIndex, "Unknown token")
	}
	if entry.Kind != scope.Function {
		return nil, c.errAt(n.TokenIndex, name+" is not function")
	}
	args := n.Children[1:]
	if len(args) != entry.ArgCount {
		return nil, c.errAt(n.TokenIndex, name+" expects "+strconv.Itoa(entry.ArgCount)+" arguments")
	}

	var out []linker.Instr
	for _, arg := range args {
		instrs, err := c.compileChild(arg, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	out = append(out, linker.Instr{Op: isa.CALL, Target: "lable_f" + strconv.Itoa(entry.Slot)})
	for i := 0; i < len(args)-1; i++ {
		out = append(out, linker.Instr{Op: isa.POP})
	}
	return out, nil
}
