package sim

// Exit reasons written to trade logs.
const (
	ReasonManual     = "MANUAL"
	ReasonRemove     = "REMOVE"
	ReasonBatchClose = "BATCH_CLOSE"

	ReasonSimProfit  = "SIM_PROFIT"
	ReasonStopLoss   = "STOP_LOSS"
	ReasonTakeProfit = "TAKE_PROFIT"

	ReasonPathAStop     = "PATH_A_STOP"
	ReasonPathARecovery = "PATH_A_RECOVERY"

	ReasonPathBWinAll       = "PATH_B_WIN_ALL"
	ReasonPathBSLCoverAll   = "PATH_B_SL_COVER_ALL"
	ReasonHedgeStopLoss     = "HEDGE_SL_4.2"
	ReasonPathBDebtRecovery = "PATH_B_DEBT_RECOVERY"

	ReasonPathCStop = "PATH_C_STOP"
	ReasonPathCWin  = "PATH_C_WIN"

	ReasonSafeClearProfit = "SAFE_CLEAR_PROFIT"
	ReasonSafeClearLoss   = "SAFE_CLEAR_LOSS"

	partialPrefix = "PARTIAL_"
)

// fullCloseShare is the fraction of a position at or above which a partial
// close becomes a full close.
const fullCloseShare = 0.99
