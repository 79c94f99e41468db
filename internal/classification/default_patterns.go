package classification

import "github.com/Veraticus/dre-classifier/internal/model"

// DefaultPatterns returns the Brazilian bank statement keyword set.
// Sign-independent patterns outrank the sign-specific ones.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "Internal Transfer",
			Movement: model.MovementInternalTransfer,
			Keywords: []string{
				"TRANSF ENTRE CONTAS", "TRANSFERENCIA ENTRE CONTAS", "ENTRE CONTAS",
				"MESMA TITULARIDADE", "MESMA TITULAR", "TRANSF MESMA TITULARIDADE",
			},
			Side:     SideAny,
			Priority: 100,
		},
		{
			Name:     "Financial Result",
			Movement: model.MovementFinancial,
			Keywords: []string{
				"JUROS", "IOF", "RENDIMENTO", "RENDIMENTOS", "REND PAGO APLIC",
				"TARIFA BANCARIA", "MULTA", "ENCARGOS FINANCEIROS", "CESTA DE SERVICOS",
			},
			Side:     SideAny,
			Priority: 90,
		},
		{
			Name:     "Investment",
			Movement: model.MovementInvestment,
			Keywords: []string{
				"APLICACAO", "APLIC", "RESGATE", "CDB", "LCI", "LCA",
				"TESOURO", "POUPANCA", "FUNDO DE INVESTIMENTO",
			},
			Side:     SideAny,
			Priority: 80,
		},
		{
			Name:     "Loan",
			Movement: model.MovementFinancial,
			Keywords: []string{
				"EMPRESTIMO", "FINANCIAMENTO", "ANTECIPACAO", "CAPITAL DE GIRO",
				"PARCELA EMPRESTIMO", "CONSORCIO",
			},
			Side:     SideAny,
			Priority: 70,
		},
		{
			Name:     "Non-Operating Income",
			Movement: model.MovementNonOperating,
			Keywords: []string{
				"INDENIZACAO", "DOACAO", "APORTE", "APORTE DE CAPITAL",
				"VENDA DE IMOBILIZADO", "VENDA IMOBILIZADO", "SINISTRO",
			},
			Side:     SideInflow,
			Priority: 50,
		},
		{
			Name:     "Revenue Deduction",
			Movement: model.MovementDeduction,
			Keywords: []string{
				"DAS SIMPLES", "DAS MEI", "SIMPLES NACIONAL", "ICMS", "ISS", "ISSQN",
				"PIS", "COFINS", "IPI",
			},
			Side:     SideOutflow,
			Priority: 50,
		},
		{
			Name:     "Direct Cost",
			Movement: model.MovementDirectCost,
			Keywords: []string{
				"FORNECEDOR", "FORNECEDORES", "MATERIA PRIMA", "MERCADORIA", "MERCADORIAS",
				"FRETE", "COMISSAO", "COMISSOES", "INSUMO", "INSUMOS", "EMBALAGEM", "EMBALAGENS",
			},
			Side:     SideOutflow,
			Priority: 40,
		},
	}
}
